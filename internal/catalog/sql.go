package catalog

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	insertRunSQL = `
INSERT INTO runs (id,
                  created_at,
                  dataset,
                  start_time,
                  end_time,
                  cadence_s,
                  output)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	updateRunReportSQL = `
UPDATE runs
SET files         = ?,
    missing_units = ?,
    partial_files = ?,
    dropped       = ?,
    missing_cells = ?
WHERE id = ?`

	insertUnitSQL = `
INSERT OR REPLACE INTO units (run_id, unit, path, status)
VALUES (?, ?, ?, ?)`

	selectRunColumns = `
SELECT id,
       created_at,
       dataset,
       start_time,
       end_time,
       cadence_s,
       output,
       files,
       missing_units,
       partial_files,
       dropped,
       missing_cells
FROM runs`

	selectRunSQL = selectRunColumns + `
WHERE id = ?`

	selectRunsSQL = selectRunColumns + `
ORDER BY created_at, rowid`

	selectUnitsSQL = `
SELECT unit,
       path,
       status
FROM units
WHERE run_id = ?
ORDER BY unit`
)
