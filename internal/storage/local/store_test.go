package local

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/storage/seed"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func memoryDSN() string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	data, err := seed.Default()
	require.NoError(t, err)

	s, err := Open(memoryDSN(), Options{Seed: data, AdminPasswordHash: "hash", ForceAdminPasswordChange: true, Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenSeedsFreshStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sites, err := s.ListSites(ctx)
	require.NoError(t, err)
	assert.Len(t, sites, 2)

	labs, err := s.ListLabs(ctx)
	require.NoError(t, err)
	assert.Len(t, labs, 11)

	devices, err := s.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 3)
	for _, d := range devices {
		assert.NotEmpty(t, d.Name)
		assert.NotZero(t, d.LabID)
	}

	admin, err := s.FindUserByEmail(ctx, "ADMIN@labmanager.local")
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, admin.Role)
	assert.True(t, admin.ForceChangePassword)
	assert.Equal(t, "hash", admin.PasswordHash)
	require.NotNil(t, admin.GroupID)

	version, err := s.Version()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestSeedIdempotent(t *testing.T) {
	data, err := seed.Default()
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(memoryDSN()), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	opts := Options{Seed: data, Logger: zap.NewNop()}
	_, err = OpenDB(db, opts)
	require.NoError(t, err)
	s, err := OpenDB(db, opts)
	require.NoError(t, err)

	var users, sites int64
	db.Model(&userModel{}).Count(&users)
	db.Model(&siteModel{}).Count(&sites)
	assert.EqualValues(t, 1, users)
	assert.EqualValues(t, 2, sites)

	// Deleting everything must not trigger a second seed.
	ctx := context.Background()
	list, err := s.ListSites(ctx)
	require.NoError(t, err)
	for _, site := range list {
		require.NoError(t, s.DeleteSite(ctx, site.ID))
	}
	_, err = OpenDB(db, opts)
	require.NoError(t, err)
	db.Model(&siteModel{}).Count(&sites)
	assert.Zero(t, sites)
}

func TestUpgradeFromVersionOnePreservesRows(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(memoryDSN()), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, migrate(db, 1, zap.NewNop()))

	require.NoError(t, db.Create(&userV1{Name: "Ana", Email: "ana@example.com", Role: "user"}).Error)
	require.NoError(t, db.Create(&taskV1{Title: "Trocar mouse", Status: "pending"}).Error)
	require.NoError(t, db.Create(&messageV1{SenderID: 1, ReceiverID: 1, Content: "oi", Timestamp: time.Now()}).Error)

	data, err := seed.Default()
	require.NoError(t, err)
	s, err := OpenDB(db, Options{Seed: data, Logger: zap.NewNop()})
	require.NoError(t, err)
	ctx := context.Background()

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1, "existing users suppress seeding")
	assert.Equal(t, "Ana", users[0].Name)
	assert.Equal(t, types.PresenceOffline, users[0].Status)
	assert.False(t, users[0].ForceChangePassword)

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, types.PriorityNormal, tasks[0].Priority)
	assert.Empty(t, tasks[0].Checklist)

	msgs, err := s.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Read)

	version, err := s.Version()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestNewerSchemaIsRejected(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(memoryDSN()), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, migrate(db, SchemaVersion, zap.NewNop()))
	require.NoError(t, db.Model(&schemaMeta{}).Where("id = ?", 1).Update("version", SchemaVersion+1).Error)

	_, err = OpenDB(db, Options{})
	assert.Error(t, err)
}

func TestDuplicateKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, types.User{Name: "Other", Email: "admin@labmanager.local", Role: types.RoleUser})
	assert.True(t, types.IsDuplicate(err), "got %v", err)

	err = s.CreateDevice(ctx, types.Device{ID: "PAT-001", Brand: "Dell", Model: "X", Status: types.DeviceOperational})
	assert.True(t, types.IsDuplicate(err), "got %v", err)

	labs, err := s.ListLabs(ctx)
	require.NoError(t, err)
	_, err = s.CreateLab(ctx, types.Lab{Name: labs[0].Name, SiteID: labs[0].SiteID})
	assert.True(t, types.IsDuplicate(err), "got %v", err)
}

func TestMissingRowsAreNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetDevice(ctx, "PAT-999")
	assert.True(t, types.IsNotFound(err))
	assert.True(t, types.IsNotFound(s.DeleteSite(ctx, 999)))
	name := "x"
	assert.True(t, types.IsNotFound(s.UpdateLab(ctx, 999, types.LabPatch{Name: &name})))
	assert.True(t, types.IsNotFound(s.UpdateTask(ctx, 999, types.TaskPatch{})))
	_, err = s.DeleteSubtask(ctx, 999)
	assert.True(t, types.IsNotFound(err))
}

func TestAppendCheckRecordIsAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := types.CheckRecord{Date: "2024-05-10", Time: fmt.Sprintf("10:%02d", i), Keyboard: true, Mouse: true, Monitor: true, Cables: true, Software: true}
			assert.NoError(t, s.AppendCheckRecord(ctx, "PAT-001", rec, types.DeviceOperational))
		}(i)
	}
	wg.Wait()

	d, err := s.GetDevice(ctx, "PAT-001")
	require.NoError(t, err)
	assert.Len(t, d.CheckHistory, 10)
	assert.Equal(t, "2024-05-10", d.LastCheck)
	assert.Equal(t, types.DeviceOperational, d.Status)
}

func TestAppendLogEntryAssignsIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	before, err := s.GetDevice(ctx, "PAT-002")
	require.NoError(t, err)

	id, err := s.AppendLogEntry(ctx, "PAT-002", types.LogEntry{Date: "2024-05-10", Description: "Troca de teclado", Type: types.LogMaintenance})
	require.NoError(t, err)
	assert.Equal(t, int64(len(before.Logs)+1), id)

	after, err := s.GetDevice(ctx, "PAT-002")
	require.NoError(t, err)
	require.Len(t, after.Logs, len(before.Logs)+1)
	assert.Equal(t, before.Logs, after.Logs[:len(before.Logs)])

	_, err = s.AppendLogEntry(ctx, "PAT-999", types.LogEntry{})
	assert.True(t, types.IsNotFound(err))
}

func setDeviceColumn(t *testing.T, s *Store, id, column, raw string) {
	t.Helper()
	require.NoError(t, s.db.Model(&deviceModel{}).Where("id = ?", id).Update(column, raw).Error)
}

func deviceColumn(t *testing.T, s *Store, id, column string) string {
	t.Helper()
	var raw string
	require.NoError(t, s.db.Model(&deviceModel{}).Where("id = ?", id).Select(column).Scan(&raw).Error)
	return raw
}

func TestAppendRefusesUnreadableHistory(t *testing.T) {
	ctx := context.Background()
	record := types.CheckRecord{Date: "2024-01-01", Keyboard: true, Mouse: true, Monitor: true, Cables: true, Software: true}

	for name, raw := range map[string]string{
		"malformed":     `[{"date":"2023-10-01","keyboard":true},]`,
		"type mismatch": `[{"date":"2023-10-01","keyboard":"yes"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			s := openTestStore(t)
			setDeviceColumn(t, s, "PAT-001", "check_history", raw)
			setDeviceColumn(t, s, "PAT-001", "logs", raw)

			err := s.AppendCheckRecord(ctx, "PAT-001", record, types.DeviceOperational)
			assert.True(t, types.IsUnavailable(err))
			assert.Equal(t, raw, deviceColumn(t, s, "PAT-001", "check_history"))

			_, err = s.AppendLogEntry(ctx, "PAT-001", types.LogEntry{Date: "2024-01-01", Description: "x", Type: types.LogInfo})
			assert.True(t, types.IsUnavailable(err))
			assert.Equal(t, raw, deviceColumn(t, s, "PAT-001", "logs"))

			// Reads still work and show the history as empty.
			d, err := s.GetDevice(ctx, "PAT-001")
			require.NoError(t, err)
			assert.Empty(t, d.CheckHistory)
		})
	}
}

func TestAppendKeepsStoredEntriesVerbatim(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	stored := `[{"date":"2023-10-01","time":"","keyboard":true,"mouse":true,"monitor":true,"cables":true,"software":true,"legacy":"kept"}]`
	setDeviceColumn(t, s, "PAT-001", "check_history", stored)

	record := types.CheckRecord{Date: "2024-01-01", Mouse: true}
	require.NoError(t, s.AppendCheckRecord(ctx, "PAT-001", record, types.DeviceMaintenance))

	raw := deviceColumn(t, s, "PAT-001", "check_history")
	assert.True(t, strings.HasPrefix(raw, stored[:len(stored)-1]+","), raw)

	d, err := s.GetDevice(ctx, "PAT-001")
	require.NoError(t, err)
	require.Len(t, d.CheckHistory, 2)
	assert.Equal(t, "2023-10-01", d.CheckHistory[0].Date)
	assert.Equal(t, record, d.CheckHistory[1])
}

func TestUserPatchClearsGroup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	admin, err := s.FindUserByEmail(ctx, "admin@labmanager.local")
	require.NoError(t, err)
	zero := int64(0)
	require.NoError(t, s.UpdateUser(ctx, admin.ID, types.UserPatch{GroupID: &zero}))

	got, err := s.GetUser(ctx, admin.ID)
	require.NoError(t, err)
	assert.Nil(t, got.GroupID)
}

func TestClearGroupMembership(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	admin, err := s.FindUserByEmail(ctx, "admin@labmanager.local")
	require.NoError(t, err)
	require.NoError(t, s.ClearGroupMembership(ctx, *admin.GroupID))

	got, err := s.GetUser(ctx, admin.ID)
	require.NoError(t, err)
	assert.Nil(t, got.GroupID)
}

func TestTaskChildren(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	admin, err := s.FindUserByEmail(ctx, "admin@labmanager.local")
	require.NoError(t, err)

	taskID, err := s.CreateTask(ctx, types.Task{Title: "Revisar lab", Status: types.TaskPending, Priority: types.PriorityHigh})
	require.NoError(t, err)

	subID, err := s.CreateSubtask(ctx, types.Subtask{TaskID: taskID, Title: "Cabos"})
	require.NoError(t, err)
	done := true
	owner, err := s.UpdateSubtask(ctx, subID, types.SubtaskPatch{Done: &done})
	require.NoError(t, err)
	assert.Equal(t, taskID, owner)

	_, err = s.CreateComment(ctx, types.Comment{TaskID: taskID, UserID: admin.ID, Content: "ok"})
	require.NoError(t, err)
	comments, err := s.ListComments(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, admin.Name, comments[0].AuthorName)

	_, err = s.CreateAttachment(ctx, types.Attachment{TaskID: taskID, FileName: "a.png", FileURL: "data:image/png;base64,AA==", FileType: "image/png"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteTask(ctx, taskID))
	subs, err := s.ListSubtasks(ctx, taskID)
	require.NoError(t, err)
	assert.Empty(t, subs)
	atts, err := s.ListAttachments(ctx, taskID)
	require.NoError(t, err)
	assert.Empty(t, atts)
}

func TestResetRestoresSeed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.DeleteDevice(ctx, "PAT-001"))
	_, err := s.CreateSite(ctx, types.Site{Name: "Extra"})
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))

	devices, err := s.ListDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, devices, 3)
	sites, err := s.ListSites(ctx)
	require.NoError(t, err)
	assert.Len(t, sites, 2)
}
