package mgo

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	mgo "PPDirect/data/database/mgo/mongoutil"
	"PPDirect/tools/errs"

	"github.com/stretchr/testify/require"
)

func TestManager_WaitReadyTimesOut(t *testing.T) {
	m := NewManager(&mgo.Config{Address: []string{"127.0.0.1:1"}, Database: "none", MaxRetry: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, m.WaitReady(ctx))

	_, ok := m.Client()
	require.False(t, ok)
	db, err := m.DB()
	require.Nil(t, db)
	require.ErrorIs(t, err, errs.ErrInternalServer)
	require.Equal(t, http.StatusInternalServerError, errs.HTTPStatus(err))
}

func TestManager_ConnectsToMongo(t *testing.T) {
	uri := os.Getenv("PPD_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("PPD_TEST_MONGO_URI not set")
	}
	req := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(&mgo.Config{Uri: uri, Database: "ppdirect_test"})
	m.Start(ctx)

	waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Second)
	defer waitCancel()
	req.NoError(m.WaitReady(waitCtx))
	db, err := m.DB()
	req.NoError(err)
	req.NotNil(db)

	cancel()
	select {
	case <-m.Stopped():
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
}
