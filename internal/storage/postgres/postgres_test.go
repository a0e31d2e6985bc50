package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/KevinKickass/OpenLabManager/internal/storage"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Store) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store := New(db, zap.NewNop())
	return db, mock, store
}

// isNull matches a NULL argument.
type isNull struct{}

func (isNull) Match(v driver.Value) bool { return v == nil }

func TestListDevicesMapsHostedValues(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	created := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT (.+) FROM computadores ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "brand", "model", "processor", "ram", "storage", "status", "labid", "created_at"}).
			AddRow("PAT-001", "Dell", "Inspiron", "i5", "8GB", "256GB", "Manutenção", int64(2), created).
			AddRow("PAT-002", "HP", "ProDesk", "i7", "16GB", "1TB", "valor estranho", int64(3), created))
	mock.ExpectQuery(`FROM check_records`).
		WillReturnRows(sqlmock.NewRows([]string{"computador_id", "date", "time", "keyboard", "mouse", "monitor", "cables", "software", "notes", "user_id", "user_name"}).
			AddRow("PAT-001", "2024-02-01", "10:00:00", true, false, true, true, true, "", int64(1), "Admin"))
	mock.ExpectQuery(`FROM device_logs`).
		WillReturnRows(sqlmock.NewRows([]string{"computador_id", "log_id", "date", "description", "type", "user_id", "user_name"}).
			AddRow("PAT-002", int64(1), "2024-01-11", "Tela trincada", "error", int64(0), ""))

	devices, err := store.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)

	assert.Equal(t, types.DeviceMaintenance, devices[0].Status)
	assert.Equal(t, "2024-02-01", devices[0].LastCheck)
	assert.Equal(t, "Dell Inspiron", devices[0].Name)
	assert.Equal(t, "i5, 8GB, 256GB", devices[0].Specs)
	require.Len(t, devices[0].CheckHistory, 1)
	assert.Equal(t, []string{"Mouse"}, devices[0].CheckHistory[0].Issues())
	assert.Empty(t, devices[0].Logs)

	assert.Equal(t, types.DeviceOperational, devices[1].Status)
	assert.Equal(t, "2024-01-10", devices[1].LastCheck)
	require.Len(t, devices[1].Logs, 1)
	assert.Equal(t, types.LogError, devices[1].Logs[0].Type)
	assert.Empty(t, devices[1].CheckHistory)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDeviceNotFound(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`FROM computadores WHERE id = \$1`).
		WithArgs("PAT-404").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetDevice(context.Background(), "PAT-404")
	assert.True(t, types.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDeviceDuplicate(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO computadores`).
		WithArgs("PAT-001", "Dell", "X", "", "", "", "Quebrado", int64(2), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})
	mock.ExpectRollback()

	err := store.CreateDevice(context.Background(), types.Device{
		ID: "PAT-001", Brand: "Dell", Model: "X", LabID: 2, Status: types.DeviceBroken, LastCheck: "2024-03-01",
	})
	assert.True(t, types.IsDuplicate(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDeviceRejectsBadDate(t *testing.T) {
	db, _, store := setupMockDB(t)
	defer db.Close()

	err := store.CreateDevice(context.Background(), types.Device{ID: "PAT-9", LastCheck: "ontem"})
	assert.True(t, types.IsValidation(err))
}

func TestUpdateMissingRowIsNotFound(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE sedes SET name = \$1 WHERE id = \$2`).
		WithArgs("Nova", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	name := "Nova"
	err := store.UpdateSite(context.Background(), 9, types.SitePatch{Name: &name})
	assert.True(t, types.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmptyPatchChecksExistence(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT 1 FROM labs WHERE id = \$1`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	err := store.UpdateLab(context.Background(), 4, types.LabPatch{})
	assert.True(t, types.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUserClearsGroup(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET group_id = \$1, status = \$2 WHERE id = \$3`).
		WithArgs(isNull{}, "busy", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	none := int64(0)
	busy := types.PresenceBusy
	err := store.UpdateUser(context.Background(), 3, types.UserPatch{GroupID: &none, Status: &busy})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	_, err := store.CreateUser(context.Background(), types.User{Name: "A", Email: "a@b.c", Role: types.RoleUser})
	require.Error(t, err)
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Field)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendLogEntryAssignsNextID(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM computadores WHERE id = \$1 FOR UPDATE`).
		WithArgs("PAT-001").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("PAT-001"))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(log_id\), 0\) \+ 1 FROM device_logs`).
		WithArgs("PAT-001").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(int64(3)))
	mock.ExpectExec(`INSERT INTO device_logs`).
		WithArgs("PAT-001", int64(3), "2024-05-02", "Troca de fonte", "maintenance", isNull{}, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := store.AppendLogEntry(context.Background(), "PAT-001", types.LogEntry{
		Date: "2024-05-02", Description: "Troca de fonte", Type: types.LogMaintenance,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendCheckRecordMissingDevice(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("PAT-404").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := store.AppendCheckRecord(context.Background(), "PAT-404", types.CheckRecord{Date: "2024-05-02"}, types.DeviceOperational)
	assert.True(t, types.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendCheckRecordWritesStatus(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("PAT-001").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("PAT-001"))
	mock.ExpectExec(`INSERT INTO check_records`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE computadores SET status = \$1 WHERE id = \$2`).
		WithArgs("Manutenção", "PAT-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.AppendCheckRecord(context.Background(), "PAT-001", types.CheckRecord{Date: "2024-05-02"}, types.DeviceMaintenance)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTaskMapsStatusAndPriority(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assignee := int64(2)
	mock.ExpectQuery(`INSERT INTO tasks`).
		WithArgs("Trocar teclado", "", "progresso", "alta", assignee, isNull{}, isNull{}, "PAT-001",
			"", "", "[]", isNull{}, now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	device := "PAT-001"
	id, err := store.CreateTask(context.Background(), types.Task{
		Title:      "Trocar teclado",
		Status:     types.TaskInProgress,
		Priority:   types.PriorityHigh,
		AssignedTo: &assignee,
		DeviceID:   &device,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTaskMapsHostedValues(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM tasks WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "description", "status", "priority", "assigned_to", "sede_id", "lab_id",
			"computador_id", "location", "due_date", "checklist", "created_by", "created_at", "updated_at"}).
			AddRow(int64(7), "Trocar teclado", "", "concluido", "urgente", nil, int64(1), nil,
				nil, "Sala 2", "2024-05-10", `[{"id":"a","text":"Comprar","completed":true}]`, int64(1), now, now))

	task, err := store.GetTask(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, types.TaskDone, task.Status)
	assert.Equal(t, types.PriorityUrgent, task.Priority)
	assert.Nil(t, task.AssignedTo)
	require.NotNil(t, task.SiteID)
	assert.Equal(t, int64(1), *task.SiteID)
	assert.Nil(t, task.DeviceID)
	require.Len(t, task.Checklist, 1)
	assert.True(t, task.Checklist[0].Completed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCommentsJoinsAuthor(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`LEFT JOIN users u ON u.id = c.user_id`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "task_id", "user_id", "content", "created_at", "name", "avatar"}).
			AddRow(int64(1), int64(7), int64(2), "Feito", now, "Ana", "https://example.com/a.png"))

	comments, err := store.ListComments(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Ana", comments[0].AuthorName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSubtaskReturnsOwner(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT task_id FROM subtasks WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"task_id"}).AddRow(int64(7)))
	mock.ExpectExec(`DELETE FROM subtasks WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	taskID, err := store.DeleteSubtask(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(7), taskID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupPermissionsRoundTrip(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO groups`).
		WithArgs("Técnicos", "", `["manage_inventory","view_reports"]`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectQuery(`FROM groups WHERE id = \$1`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "permissions"}).
			AddRow(int64(2), "Técnicos", "", `["manage_inventory","view_reports"]`))

	ctx := context.Background()
	id, err := store.CreateGroup(ctx, types.Group{
		Name:        "Técnicos",
		Permissions: []types.Permission{types.PermManageInventory, types.PermViewReports},
	})
	require.NoError(t, err)

	group, err := store.GetGroup(ctx, id)
	require.NoError(t, err)
	assert.True(t, group.Has(types.PermViewReports))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetIsUnsupported(t *testing.T) {
	db, _, store := setupMockDB(t)
	defer db.Close()

	assert.ErrorIs(t, store.Reset(context.Background()), storage.ErrUnsupported)
	caps := store.Capabilities()
	assert.True(t, caps.PasswordHash)
	assert.False(t, caps.ForceChangePassword)
	assert.False(t, caps.Seeding)
}
