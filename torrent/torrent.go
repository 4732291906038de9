package torrent

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/zeebo/bencode"
)

// File is a metainfo file.
// See: https://wiki.theory.org/index.php/BitTorrentSpecification#Metainfo_File_Structure
type File struct {
	announce string
	infoHash [20]byte
	info     info
}

type info struct {
	name        string
	pieceLength int64
	pieces      string
	length      int64
	files       []FileEntry
}

// FileEntry is a single file described by the metainfo, with its path relative to the download directory.
type FileEntry struct {
	Path   string
	Length int64
}

type rawFile struct {
	Announce string             `bencode:"announce"`
	Info     bencode.RawMessage `bencode:"info"`
}

type rawInfo struct {
	Name     string `bencode:"name"`
	PieceLen int64  `bencode:"piece length"`
	Pieces   string `bencode:"pieces"`
	Length   int64  `bencode:"length"`
	Files    []struct {
		Length int64    `bencode:"length"`
		Path   []string `bencode:"path"`
	} `bencode:"files"`
}

// Parse extracts a metainfo from the torrent file specified by path argument.
func Parse(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open torrent file: %w", err)
	}
	defer func() { _ = file.Close() }()
	return Decode(file)
}

// Decode reads a bencoded metainfo from r. All validation problems are reported together.
func Decode(r io.Reader) (*File, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read torrent file: %w", err)
	}
	var raw rawFile
	if err := bencode.DecodeBytes(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode torrent file: %w", err)
	}
	if len(raw.Info) == 0 {
		return nil, errors.New("failed to decode torrent file: missing 'info' dictionary")
	}
	var ri rawInfo
	if err := bencode.DecodeBytes(raw.Info, &ri); err != nil {
		return nil, fmt.Errorf("failed to decode torrent info: %w", err)
	}
	if err := validate(&raw, &ri); err != nil {
		return nil, fmt.Errorf("invalid torrent file: %w", err)
	}

	f := &File{
		announce: raw.Announce,
		infoHash: sha1.Sum(raw.Info),
		info: info{
			name:        ri.Name,
			pieceLength: ri.PieceLen,
			pieces:      ri.Pieces,
			length:      ri.Length,
		},
	}
	for _, rf := range ri.Files {
		parts := append([]string{ri.Name}, rf.Path...)
		f.info.files = append(f.info.files, FileEntry{Path: filepath.Join(parts...), Length: rf.Length})
	}
	return f, nil
}

func validate(raw *rawFile, ri *rawInfo) error {
	var result *multierror.Error
	if raw.Announce == "" {
		result = multierror.Append(result, errors.New("missing 'announce' URL"))
	}
	if ri.PieceLen <= 0 {
		result = multierror.Append(result, fmt.Errorf("'piece length' must be positive, got %d", ri.PieceLen))
	}
	if len(ri.Pieces)%sha1.Size != 0 {
		result = multierror.Append(result, fmt.Errorf("'pieces' has incorrect size %d, must be N * %d", len(ri.Pieces), sha1.Size))
	}
	if ri.Length < 0 {
		result = multierror.Append(result, fmt.Errorf("'length' must not be negative, got %d", ri.Length))
	}
	if ri.Length != 0 && len(ri.Files) > 0 {
		result = multierror.Append(result, errors.New("both 'length' and 'files' are present"))
	}
	for i, rf := range ri.Files {
		if rf.Length < 0 {
			result = multierror.Append(result, fmt.Errorf("file %d: 'length' must not be negative, got %d", i, rf.Length))
		}
		if len(rf.Path) == 0 {
			result = multierror.Append(result, fmt.Errorf("file %d: empty 'path'", i))
		}
	}
	return result.ErrorOrNil()
}

// InfoHash is the SHA-1 of the bencoded info dictionary exactly as it appears in the torrent file.
func (f *File) InfoHash() [20]byte {
	return f.infoHash
}

func (f *File) Announce() string {
	return f.announce
}

func (f *File) Name() string {
	return f.info.name
}

func (f *File) PieceLength() int64 {
	return f.info.pieceLength
}

func (f *File) PiecesNumber() int64 {
	return int64(len(f.info.pieces) / sha1.Size)
}

// Files lists the files of the torrent. A single-file torrent yields one entry named after the torrent.
func (f *File) Files() []FileEntry {
	if len(f.info.files) == 0 {
		return []FileEntry{{Path: f.info.name, Length: f.info.length}}
	}
	files := make([]FileEntry, len(f.info.files))
	copy(files, f.info.files)
	return files
}

// Length is the total number of bytes to transfer.
func (f *File) Length() int64 {
	var res int64
	for _, file := range f.Files() {
		res += file.Length
	}
	return res
}
