package county

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parkscout/internal/db"
)

// countyShapefileURL is the national TIGER/Line county boundary file.
const countyShapefileURL = "https://www2.census.gov/geo/tiger/TIGER2024/COUNTY/tl_2024_us_county.zip"

const defaultBatchSize = 200

// County is one boundary row destined for geo.counties.
type County struct {
	GeoID     string
	StateFIPS string
	Name      string
	Boundary  []byte
}

// Download fetches the TIGER county ZIP into destDir, extracts it, and
// returns the path of the .shp file. An existing non-empty ZIP is
// reused.
func Download(ctx context.Context, destDir string) (string, error) {
	log := zap.L().With(zap.String("component", "county.download"))

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "county: create dest dir")
	}

	parts := strings.Split(countyShapefileURL, "/")
	zipName := parts[len(parts)-1]
	zipPath := filepath.Join(destDir, zipName)

	if info, err := os.Stat(zipPath); err == nil && info.Size() > 0 {
		log.Debug("zip already exists, skipping download", zap.String("path", zipPath))
	} else {
		log.Info("downloading county shapefile", zap.String("url", countyShapefileURL))
		if err := downloadFile(ctx, countyShapefileURL, zipPath); err != nil {
			return "", eris.Wrap(err, "county: download shapefile")
		}
	}

	extractDir := filepath.Join(destDir, strings.TrimSuffix(zipName, ".zip"))
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", eris.Wrap(err, "county: create extract dir")
	}
	if err := extractZIP(zipPath, extractDir); err != nil {
		return "", eris.Wrap(err, "county: extract ZIP")
	}

	shpPath, err := findFileByExt(extractDir, ".shp")
	if err != nil {
		return "", eris.Wrap(err, "county: find .shp file")
	}
	return shpPath, nil
}

// ParseShapefile reads county boundaries from a TIGER shapefile. When
// stateFIPS is non-empty only that state's counties are returned.
// Records with unusable geometry are skipped.
func ParseShapefile(shpPath, stateFIPS string) ([]County, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "county: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	geoidIdx := fieldIndex(reader, "GEOID")
	stateIdx := fieldIndex(reader, "STATEFP")
	nameIdx := fieldIndex(reader, "NAMELSAD")
	if nameIdx < 0 {
		nameIdx = fieldIndex(reader, "NAME")
	}
	if geoidIdx < 0 || stateIdx < 0 || nameIdx < 0 {
		return nil, eris.New("county: required shapefile fields (GEOID, STATEFP, NAMELSAD) not found")
	}

	var counties []County
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		fips := attr(reader, stateIdx)
		if stateFIPS != "" && fips != stateFIPS {
			continue
		}

		geoid := attr(reader, geoidIdx)
		if geoid == "" {
			skipped++
			continue
		}

		boundary, err := encodeBoundary(shape)
		if err != nil || boundary == nil {
			skipped++
			continue
		}

		name := attr(reader, nameIdx)
		if name != "" && !strings.HasSuffix(name, "County") {
			name += " County"
		}

		counties = append(counties, County{
			GeoID:     geoid,
			StateFIPS: fips,
			Name:      name,
			Boundary:  boundary,
		})
	}

	if skipped > 0 {
		zap.L().Debug("county: skipped shapefile records", zap.Int("skipped", skipped))
	}
	return counties, nil
}

// Replace reloads geo.counties for the given counties' states. Existing
// rows for those states are deleted first, then the new rows are loaded
// via COPY in batches.
func Replace(ctx context.Context, pool db.Pool, counties []County, batchSize int) (int64, error) {
	if len(counties) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	states := make(map[string]struct{})
	for _, c := range counties {
		states[c.StateFIPS] = struct{}{}
	}
	for fips := range states {
		if _, err := pool.Exec(ctx, "DELETE FROM geo.counties WHERE state_fips = $1", fips); err != nil {
			return 0, eris.Wrapf(err, "county: clear state %s", fips)
		}
	}

	rows := make([][]any, 0, len(counties))
	for _, c := range counties {
		rows = append(rows, []any{c.GeoID, c.StateFIPS, c.Name, c.Boundary})
	}

	columns := []string{"geoid", "state_fips", "name", "boundary"}
	log := zap.L().With(
		zap.String("component", "county.loader"),
		zap.Int("total_rows", len(rows)),
	)

	var total int64
	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		n, err := db.CopyInto(ctx, pool, "geo.counties", columns, rows[i:end])
		if err != nil {
			return total, eris.Wrapf(err, "county: load batch %d-%d", i, end)
		}
		total += n
		log.Debug("batch loaded", zap.Int("batch_start", i), zap.Int64("batch_rows", n))
	}

	return total, nil
}

func attr(reader *shp.Reader, idx int) string {
	return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
}

// fieldIndex returns the index of a named field, or -1.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

func downloadFile(ctx context.Context, url, dest string) error {
	client := &http.Client{Timeout: 10 * time.Minute}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("download returned status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, resp.Body); err != nil {
		return eris.Wrap(err, "write file")
	}
	return nil
}

func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		destPath := filepath.Join(destDir, filepath.Base(f.Name))

		rc, err := f.Open()
		if err != nil {
			return eris.Wrapf(err, "open zip entry %s", f.Name)
		}

		outFile, err := os.Create(destPath)
		if err != nil {
			_ = rc.Close()
			return eris.Wrapf(err, "create %s", destPath)
		}

		if _, err := io.Copy(outFile, rc); err != nil {
			_ = outFile.Close()
			_ = rc.Close()
			return eris.Wrapf(err, "extract %s", f.Name)
		}
		_ = outFile.Close()
		_ = rc.Close()
	}
	return nil
}

// findFileByExt finds the first file with the given extension in a directory.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file found in %s", ext, dir)
}
