package redisdb_test

import (
	"testing"

	"github.com/johndosdos/paychat/internal/store/memory"
	"github.com/johndosdos/paychat/internal/store/redisdb"
	"github.com/johndosdos/paychat/internal/store/storetest"
	"github.com/johndosdos/paychat/internal/testutil"
)

func TestSessionStore(t *testing.T) {
	client := testutil.RedisInit(t)
	s := redisdb.NewSessionStore(client, "paychat-test:")
	storetest.RunSessionStore(t, s, memory.New())
}
