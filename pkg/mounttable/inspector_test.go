package mounttable

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMountOutput(t *testing.T) {
	output := `/dev/disk1s1 on / (apfs, local, journaled)
user@host:/remote/path on /Users/alice/My\040Mount (osxfuse, nodev, nosuid, mounted by alice)
map auto_home on /home (autofs, nosuid, automounted)`

	records := parseMountOutput(output)
	assert.Len(t, records, 3)
	assert.Equal(t, "/Users/alice/My Mount", records[1].MountPoint)
	assert.Equal(t, "osxfuse", records[1].FilesystemType)
	assert.Equal(t, "user@host:/remote/path", records[1].Source)
}

func TestParseDFOutput(t *testing.T) {
	output := `Filesystem   512-blocks      Used Available Capacity  Mounted on
macfuse@0:14    15728640         0  15728640     0%    /Users/alice/mnt`

	rec := parseDFOutput(output)
	if assert.NotNil(t, rec) {
		assert.Equal(t, "/Users/alice/mnt", rec.MountPoint)
	}
}

func TestParseDFOutput_TooFewLines(t *testing.T) {
	rec := parseDFOutput("Filesystem   512-blocks      Used Available Capacity  Mounted on\n")
	assert.Nil(t, rec)
}

func TestDecodeEscapes(t *testing.T) {
	assert.Equal(t, "a b", decodeEscapes(`a\040b`))
	assert.Equal(t, "plain", decodeEscapes("plain"))
	assert.Equal(t, `trailing\0`, decodeEscapes(`trailing\0`))
}

func TestNormalize_StripsTrailingSlash(t *testing.T) {
	assert.Equal(t, "/foo/bar", Normalize("/foo/bar/"))
	assert.Equal(t, "/", Normalize("/"))
}
