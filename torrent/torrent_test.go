package torrent

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"
)

func singleFileInfo(name string, length int64) map[string]interface{} {
	return map[string]interface{}{
		"name":         name,
		"piece length": int64(512),
		"pieces":       strings.Repeat("x", 3*sha1.Size),
		"length":       length,
	}
}

func encodeTorrent(t *testing.T, announce string, info map[string]interface{}) []byte {
	t.Helper()
	m := map[string]interface{}{"info": info}
	if announce != "" {
		m["announce"] = announce
	}
	data, err := bencode.EncodeBytes(m)
	require.NoError(t, err)
	return data
}

func writeTorrent(t *testing.T, announce string, info map[string]interface{}) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.torrent")
	require.NoError(t, ioutil.WriteFile(path, encodeTorrent(t, announce, info), 0o644))
	return path
}

func TestParseSingleFile(t *testing.T) {
	info := singleFileInfo("movie.mkv", 1536)
	f, err := Parse(writeTorrent(t, "http://tracker.example/announce", info))
	require.NoError(t, err)

	encodedInfo, err := bencode.EncodeBytes(info)
	require.NoError(t, err)
	assert.Equal(t, sha1.Sum(encodedInfo), f.InfoHash())
	assert.Equal(t, "http://tracker.example/announce", f.Announce())
	assert.Equal(t, "movie.mkv", f.Name())
	assert.Equal(t, int64(512), f.PieceLength())
	assert.Equal(t, int64(3), f.PiecesNumber())
	assert.Equal(t, int64(1536), f.Length())
	assert.Equal(t, []FileEntry{{Path: "movie.mkv", Length: 1536}}, f.Files())
}

func TestParseMultiFile(t *testing.T) {
	info := map[string]interface{}{
		"name":         "album",
		"piece length": int64(1024),
		"pieces":       strings.Repeat("y", sha1.Size),
		"files": []interface{}{
			map[string]interface{}{"length": int64(100), "path": []interface{}{"cd1", "01.flac"}},
			map[string]interface{}{"length": int64(250), "path": []interface{}{"cover.jpg"}},
		},
	}
	f, err := Decode(bytes.NewReader(encodeTorrent(t, "http://tracker.example/announce", info)))
	require.NoError(t, err)

	assert.Equal(t, int64(350), f.Length())
	assert.Equal(t, []FileEntry{
		{Path: filepath.Join("album", "cd1", "01.flac"), Length: 100},
		{Path: filepath.Join("album", "cover.jpg"), Length: 250},
	}, f.Files())
}

func TestDecodeReportsAllProblems(t *testing.T) {
	info := singleFileInfo("broken", 10)
	info["piece length"] = int64(0)
	info["pieces"] = "short"

	_, err := Decode(bytes.NewReader(encodeTorrent(t, "", info)))
	require.Error(t, err)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 3)
}

func TestDecodeInvalid(t *testing.T) {
	tests := map[string][]byte{
		"not bencode":  []byte("this is not a torrent"),
		"missing info": []byte("d8:announce22:http://tracker.examplee"),
		"info is list": []byte("d8:announce22:http://tracker.example4:infoli1eee"),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(data))
			assert.Error(t, err)
		})
	}
}

func TestParseMissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "absent.torrent"))
	assert.Error(t, err)
}
