package importexport

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/repository"
	"github.com/KevinKickass/OpenLabManager/internal/storage/local"
	"github.com/KevinKickass/OpenLabManager/internal/storage/seed"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRepo(t *testing.T) *repository.Repository {
	t.Helper()
	data, err := seed.Default()
	require.NoError(t, err)
	store, err := local.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), local.Options{Seed: data, Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return repository.New(store, repository.Options{Logger: zap.NewNop()})
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "patrimonio", NormalizeHeader("Patrimônio"))
	assert.Equal(t, "patrimonio", NormalizeHeader("  PATRIMÔNIO "))
	assert.Equal(t, "ultima verificacao", NormalizeHeader("Última  Verificação"))
	assert.Equal(t, "laboratorio", NormalizeHeader("\ufeffLaboratório"))
}

func TestParseHeaderSynonyms(t *testing.T) {
	for _, header := range []string{"Patrimônio,Laboratório", "patrimonio,laboratorio", "ID,Lab", "serial,local"} {
		t.Run(header, func(t *testing.T) {
			src := header + "\nPAT-9,Lab Turing\n"
			rows, errs, err := Parse(strings.NewReader(src), FormatCSV)
			require.NoError(t, err)
			assert.Empty(t, errs)
			require.Len(t, rows, 1)
			assert.Equal(t, "PAT-9", rows[0].ID)
			assert.Equal(t, "Lab Turing", rows[0].Lab)
		})
	}
}

func TestParseSkipsIncompleteRows(t *testing.T) {
	src := "Patrimônio;Laboratório;Marca\n" +
		"PAT-1;Lab A;Dell\n" +
		";;Lenovo\n" +
		"PAT-3;;HP\n" +
		";;\n"
	rows, errs, err := Parse(strings.NewReader(src), FormatCSV)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Dell", rows[0].Brand)
	require.Len(t, errs, 2)
	assert.Equal(t, 3, errs[0].Line)
	assert.Equal(t, 4, errs[1].Line)
}

func TestParseRejectsUnknownSheet(t *testing.T) {
	_, _, err := Parse(strings.NewReader("foo,bar\n1,2\n"), FormatCSV)
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestFormatFromName(t *testing.T) {
	f, err := FormatFromName("inventario.XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
	_, err = FormatFromName("inventario.pdf")
	assert.Error(t, err)
}

func TestImportDefaults(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	labs, err := repo.ListLabs(ctx)
	require.NoError(t, err)

	im := NewImporter(repo, zap.NewNop())
	im.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	rows := []Row{
		{Line: 2, ID: "PAT-500", Lab: strings.ToUpper(labs[0].Name), Brand: "Dell", Model: "X", Status: "Sumido"},
		{Line: 3, ID: "PAT-001", Lab: labs[1].Name, Brand: "Lenovo", Model: "M70", Status: "Quebrado", LastCheck: "15/03/2024"},
		{Line: 4, ID: "PAT-501", Lab: "Lab Inexistente"},
	}
	report, err := im.Import(ctx, rows, []RowError{{Line: 5, Reason: "missing id"}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 2, report.Errors)

	created, err := repo.GetDevice(ctx, "PAT-500")
	require.NoError(t, err)
	assert.Equal(t, types.DeviceOperational, created.Status)
	assert.Equal(t, "2024-06-01", created.LastCheck)

	updated, err := repo.GetDevice(ctx, "PAT-001")
	require.NoError(t, err)
	assert.Equal(t, types.DeviceBroken, updated.Status)
	assert.Equal(t, "2024-03-15", updated.LastCheck)
	assert.Equal(t, "Lenovo M70", updated.Name)
}

// snapshot keeps the columns a sheet carries, keyed by device id.
func snapshot(devices []types.Device) map[string]types.Device {
	out := make(map[string]types.Device, len(devices))
	for _, d := range devices {
		d.CheckHistory = nil
		d.Logs = nil
		out[d.ID] = d
	}
	return out
}

func TestExportImportRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatCSV, FormatXLSX} {
		t.Run(string(format), func(t *testing.T) {
			ctx := context.Background()
			src := newRepo(t)

			broken := types.DeviceBroken
			require.NoError(t, src.UpdateDevice(ctx, "PAT-002", types.DevicePatch{Status: &broken}))
			original, err := src.ListDevices(ctx)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, Export(&buf, format, original))

			dst := newRepo(t)
			existing, err := dst.ListDevices(ctx)
			require.NoError(t, err)
			for _, d := range existing {
				require.NoError(t, dst.DeleteDevice(ctx, d.ID))
			}

			rows, errs, err := Parse(&buf, format)
			require.NoError(t, err)
			assert.Empty(t, errs)

			report, err := NewImporter(dst, zap.NewNop()).Import(ctx, rows, errs)
			require.NoError(t, err)
			assert.Equal(t, len(original), report.Imported)
			assert.Zero(t, report.Errors)

			imported, err := dst.ListDevices(ctx)
			require.NoError(t, err)
			assert.Equal(t, snapshot(original), snapshot(imported))
		})
	}
}

func TestTemplateHeaders(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Template(&buf, FormatCSV))
	first := strings.SplitN(strings.TrimPrefix(buf.String(), "\ufeff"), "\n", 2)[0]
	assert.Equal(t, strings.Join(TemplateHeaders, ","), first)

	buf.Reset()
	require.NoError(t, Template(&buf, FormatXLSX))
	_, _, err := Parse(&buf, FormatXLSX)
	require.NoError(t, err)
}

// twoLabsNamed creates a lab called name in each of two new sites.
func twoLabsNamed(t *testing.T, repo *repository.Repository, name string) (int64, int64) {
	t.Helper()
	ctx := context.Background()
	var ids []int64
	for _, site := range []string{"Campus Norte", "Campus Sul"} {
		siteID, err := repo.CreateSite(ctx, types.Site{Name: site})
		require.NoError(t, err)
		labID, err := repo.CreateLab(ctx, types.Lab{Name: name, SiteID: siteID})
		require.NoError(t, err)
		ids = append(ids, labID)
	}
	return ids[0], ids[1]
}

func TestImportKeepsLabsOfSameNameApart(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	labA, labB := twoLabsNamed(t, repo, "Sala 1")

	require.NoError(t, repo.CreateDevice(ctx, types.Device{ID: "X-A", LabID: labA, Brand: "Dell", Model: "A"}))
	require.NoError(t, repo.CreateDevice(ctx, types.Device{ID: "X-B", LabID: labB, Brand: "HP", Model: "B"}))
	devices, err := repo.ListDevices(ctx)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, FormatCSV, devices))
	require.NoError(t, repo.DeleteDevice(ctx, "X-A"))
	require.NoError(t, repo.DeleteDevice(ctx, "X-B"))

	rows, errs, err := Parse(&buf, FormatCSV)
	require.NoError(t, err)
	report, err := NewImporter(repo, zap.NewNop()).Import(ctx, rows, errs)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)
	assert.Zero(t, report.Errors)

	a, err := repo.GetDevice(ctx, "X-A")
	require.NoError(t, err)
	assert.Equal(t, labA, a.LabID)
	assert.Equal(t, "Campus Norte", a.Site)
	b, err := repo.GetDevice(ctx, "X-B")
	require.NoError(t, err)
	assert.Equal(t, labB, b.LabID)
	assert.Equal(t, "Campus Sul", b.Site)
}

func TestImportAmbiguousLabWithoutSite(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	_, labB := twoLabsNamed(t, repo, "Sala 1")

	rows, errs, err := Parse(strings.NewReader(
		"Patrimônio,Laboratório,Unidade\n"+
			"X-C,sala 1,\n"+
			"X-D,Sala 1,campus sul\n"), FormatCSV)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "campus sul", rows[1].Site)

	report, err := NewImporter(repo, zap.NewNop()).Import(ctx, rows, errs)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 1, report.Errors)
	require.Len(t, report.Details, 1)
	assert.Equal(t, 2, report.Details[0].Line)
	assert.Contains(t, report.Details[0].Reason, "several sites")

	_, err = repo.GetDevice(ctx, "X-C")
	assert.True(t, types.IsNotFound(err))
	d, err := repo.GetDevice(ctx, "X-D")
	require.NoError(t, err)
	assert.Equal(t, labB, d.LabID)
}
