package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cosreg/regwatch/pkg/reconcile"
)

func reconcileOptions(t *testing.T) reconcile.Options {
	dir := t.TempDir()
	opts := reconcile.Options{
		BaselineDir: filepath.Join(dir, "baseline"),
		IncomingDir: filepath.Join(dir, "incoming"),
		OutDir:      filepath.Join(dir, "out"),
	}
	require.NoError(t, os.MkdirAll(opts.BaselineDir, 0o755))
	require.NoError(t, os.MkdirAll(opts.IncomingDir, 0o755))
	return opts
}

func TestReconcileNotifiesWithoutIncomingFiles(t *testing.T) {
	n := &recordingNotifier{}
	var out bytes.Buffer
	require.NoError(t, runReconcile(context.Background(), reconcileOptions(t), n, &out))

	require.Len(t, n.sent, 1)
	require.Equal(t, "[FDA] Reconcile: no incoming files", n.sent[0].Subject)
	require.Empty(t, n.sent[0].Attachments)
	require.Empty(t, out.String())
}

func TestReconcileAttachesWorkbook(t *testing.T) {
	opts := reconcileOptions(t)
	require.NoError(t, os.WriteFile(filepath.Join(opts.BaselineDir, "Glow.csv"), []byte("sku,name\nA1,Cream\n"), 0o644))

	f := excelize.NewFile()
	for i, row := range [][]interface{}{{"sku", "name"}, {"A1", "Cream"}, {"B2", "Serum"}} {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(filepath.Join(opts.IncomingDir, "Glow.xlsx")))
	require.NoError(t, f.Close())

	n := &recordingNotifier{}
	var out bytes.Buffer
	require.NoError(t, runReconcile(context.Background(), opts, n, &out))

	require.Len(t, n.sent, 1)
	require.Equal(t, "[FDA] Reconcile: 1 brands, +1 / -0 rows", n.sent[0].Subject)
	require.Len(t, n.sent[0].Attachments, 1)
	require.FileExists(t, n.sent[0].Attachments[0])
	require.Contains(t, out.String(), "Glow")
}
