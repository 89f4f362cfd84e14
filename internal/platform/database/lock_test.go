package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockID(t *testing.T) {
	assert.Equal(t, LockID("bsp-scan", "schema"), LockID("bsp-scan", "schema"))
	assert.NotEqual(t, LockID("bsp-scan", "schema"), LockID("bsp-scan", "stocks"))
	assert.NotEqual(t, migrateLockID, stockImportLockID)
}

func TestConnectionParams_DSN(t *testing.T) {
	p := ConnectionParams{Host: "db", Port: 5433, User: "scan", Password: "pw", DBName: "bsp", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=scan password=pw dbname=bsp sslmode=disable", p.DSN())
}

func TestNewAdapter(t *testing.T) {
	a := newAdapter(nil)
	assert.NotNil(t, a.Stocks)
	assert.NotNil(t, a.Locks)
}
