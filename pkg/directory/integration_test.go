//go:build integration

package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"gorm.io/gorm/logger"

	"github.com/hrtools/healthcert/pkg/database"
)

const rosterDDL = `CREATE TABLE hr_sync (
	sf_user_id VARCHAR(64) NOT NULL PRIMARY KEY,
	mp_number VARCHAR(64),
	pwd VARCHAR(128),
	name VARCHAR(128),
	depart_name_cn VARCHAR(128),
	sup_dep VARCHAR(128),
	supervisor_sf_user_id VARCHAR(64),
	job_name_cn VARCHAR(128),
	position_name_cn VARCHAR(128),
	role VARCHAR(32),
	is_frontline_worker CHAR(1),
	email VARCHAR(128)
)`

func TestSyncFromMySQLRoster(t *testing.T) {
	ctx := context.Background()

	ctr, err := mysql.Run(ctx, "mysql:8.0.36",
		mysql.WithDatabase("hr"),
		mysql.WithUsername("hr"),
		mysql.WithPassword("hr"),
	)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate mysql container: %v", err)
		}
	})
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)
	require.NoError(t, database.ValidateMySQLDSN(dsn))

	remote, err := database.Open(database.Options{
		Driver:   database.DriverMySQL,
		DSN:      dsn,
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)

	require.NoError(t, remote.Exec(rosterDDL).Error)
	require.NoError(t, remote.Exec(`INSERT INTO hr_sync
		(sf_user_id, mp_number, name, depart_name_cn, sup_dep, role, is_frontline_worker, email) VALUES
		('u1', 'mp1', 'Alice', 'Kitchen', 'Operations', 'staff', 'Y', 'alice@example.com'),
		('u2', 'mp2', 'Bob', 'Operations', '', 'manager', 'N', 'bob@example.com'),
		(' u3 ', 'mp3', 'Carol', 'Kitchen', 'Operations', 'staff', 'Y', '')`).Error)

	local := setupTestDB(t)
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	engine := NewEngine(local, NewGormRosterSource(remote, ""), &MemorySyncFlag{}, WithClock(func() time.Time { return now }))

	result, err := engine.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Added)
	assert.Equal(t, 0, result.Deactivated)

	carol, err := engine.Employees().GetBySfUserID(ctx, "u3")
	require.NoError(t, err)
	require.NotNil(t, carol)
	assert.Equal(t, "Kitchen", carol.DepartName)

	entry, err := NewGormRosterSource(remote, "").FetchOne(ctx, "u2")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.False(t, entry.Frontline())

	require.NoError(t, remote.Exec("DELETE FROM hr_sync WHERE sf_user_id = 'u2'").Error)
	result, err = engine.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deactivated)

	bob, err := engine.Employees().GetBySfUserID(ctx, "u2")
	require.NoError(t, err)
	require.NotNil(t, bob)
	assert.False(t, bob.IsActive)
}
