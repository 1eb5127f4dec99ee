package database

import (
	"fmt"
	"testing"

	"we-planet-api/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectorFor(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "sqlite:we_planet.db", want: "sqlite"},
		{url: "file:test?mode=memory", want: "sqlite"},
		{url: "postgres://u:p@localhost:5432/db", want: "postgres"},
		{url: "postgresql://u:p@localhost/db", want: "postgres"},
		{url: "host=localhost user=u dbname=db", want: "postgres"},
		{url: "mysql://localhost/db", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			d, err := dialectorFor(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestOpenAndMigrate_SQLite(t *testing.T) {
	url := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open(url, false)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, m := range models.All() {
		assert.True(t, db.Migrator().HasTable(m), "missing table for %T", m)
	}
}
