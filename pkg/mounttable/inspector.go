package mounttable

import (
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sshfsmond/sshfsmond/pkg/procrunner"
	"github.com/sshfsmond/sshfsmond/pkg/types"
)

const (
	defaultMountTimeout = 3 * time.Second
	defaultDFTimeout    = 3 * time.Second
)

// mountLineRE matches a classic BSD/macOS `mount` line:
// "<source> on <mountpoint> (<fstype>, <opt>, ...)"
var mountLineRE = regexp.MustCompile(`^(.+?) on (.+?) \(([^,)]+)(?:,.*)?\)$`)

// Inspector reads the live mount table via external commands.
type Inspector struct {
	mountBin string
	dfBin    string
}

// New returns an Inspector using the conventional binary locations.
func New() *Inspector {
	return &Inspector{mountBin: "/sbin/mount", dfBin: "/bin/df"}
}

// Records returns every parsed mount entry from the primary listing.
func (i *Inspector) Records(ctx context.Context) ([]types.MountRecord, error) {
	res, err := procrunner.Run(ctx, i.mountBin, nil, nil, defaultMountTimeout, "")
	if err != nil {
		return nil, err
	}
	records := parseMountOutput(res.Stdout)
	return records, nil
}

// Find looks up the mount record for path, normalizing it first. It tries
// the primary listing, then falls back to `df -P path` only if the primary
// listing command fails (for example, times out). A listing that runs but
// has no entry for this path returns nil without consulting df.
func (i *Inspector) Find(ctx context.Context, path string) (*types.MountRecord, error) {
	rec, err := i.FindPrimary(ctx, path)
	if err == nil {
		return rec, nil
	}
	return i.FindDF(ctx, path)
}

// FindPrimary looks up path using only the primary `mount` listing,
// without falling back to df. Callers that need to distinguish "listing
// failed" from "listing succeeded but found nothing" (like a refresh's
// preserve-miss bookkeeping) use this directly.
func (i *Inspector) FindPrimary(ctx context.Context, path string) (*types.MountRecord, error) {
	norm := Normalize(path)

	records, err := i.Records(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if Normalize(r.MountPoint) == norm {
			rec := r
			return &rec, nil
		}
	}
	return nil, nil
}

// FindDF looks up path using only the `df -P path` fallback.
func (i *Inspector) FindDF(ctx context.Context, path string) (*types.MountRecord, error) {
	norm := Normalize(path)

	dfRes, dfErr := procrunner.Run(ctx, i.dfBin, []string{"-P", path}, nil, defaultDFTimeout, "")
	if dfErr != nil {
		return nil, dfErr
	}
	rec := parseDFOutput(dfRes.Stdout)
	if rec == nil {
		return nil, nil
	}
	if Normalize(rec.MountPoint) != norm {
		return nil, nil
	}
	return rec, nil
}

// parseMountOutput parses the full `mount` listing into records.
func parseMountOutput(output string) []types.MountRecord {
	var records []types.MountRecord
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := mountLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		records = append(records, types.MountRecord{
			Source:         decodeEscapes(strings.TrimSpace(m[1])),
			MountPoint:     decodeEscapes(strings.TrimSpace(m[2])),
			FilesystemType: strings.TrimSpace(m[3]),
		})
	}
	return records
}

// parseDFOutput parses a `df -P <path>` two-line report and returns at
// most one record keyed by the "Mounted on" column.
func parseDFOutput(output string) *types.MountRecord {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) < 2 {
		return nil
	}
	fields := strings.Fields(lines[1])
	if len(fields) < 6 {
		return nil
	}
	// Filesystem 512-blocks Used Available Capacity Mounted-on
	mountPoint := strings.Join(fields[5:], " ")
	return &types.MountRecord{
		Source:     fields[0],
		MountPoint: decodeEscapes(mountPoint),
	}
}

// decodeEscapes decodes octal whitespace escapes (`\040` for space, etc.)
// the way the system mount table encodes paths containing spaces.
func decodeEscapes(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '\\' && i+3 < len(s) && isOctalDigit(s[i+1]) && isOctalDigit(s[i+2]) && isOctalDigit(s[i+3]) {
			if v, err := strconv.ParseInt(s[i+1:i+4], 8, 32); err == nil {
				b.WriteByte(byte(v))
				i += 4
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func isOctalDigit(b byte) bool { return b >= '0' && b <= '7' }

// Normalize standardizes a path for mount-point comparison: resolves
// symlinks where possible, cleans it, and strips a trailing slash except
// for the root path itself.
func Normalize(path string) string {
	cleaned := filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(cleaned); err == nil {
		cleaned = resolved
	}
	if cleaned != "/" {
		cleaned = strings.TrimSuffix(cleaned, "/")
	}
	return cleaned
}
