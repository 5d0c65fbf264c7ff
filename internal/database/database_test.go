package database_test

import (
	"testing"

	"github.com/johndosdos/paychat/internal/database"
	"github.com/johndosdos/paychat/internal/store/storetest"
	"github.com/johndosdos/paychat/internal/testutil"
)

func TestAccountStore(t *testing.T) {
	pool := testutil.DbInit(t)
	storetest.RunAccountStore(t, database.New(pool))
}

func TestSessionStore(t *testing.T) {
	pool := testutil.DbInit(t)
	q := database.New(pool)
	storetest.RunSessionStore(t, q, q)
}

func TestMessageStore(t *testing.T) {
	pool := testutil.DbInit(t)
	q := database.New(pool)
	storetest.RunMessageStore(t, q, q)
}
