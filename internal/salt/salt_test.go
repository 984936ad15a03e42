package salt

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestFileProvider_GeneratesOnFirstUse(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "salt")
	p := FileProvider{Path: path}

	secret, err := p.Secret(ctx)
	if err != nil {
		t.Fatalf("Secret: %v", err)
	}
	if len(secret) != saltBytes {
		t.Fatalf("generated secret length = %d, want %d", len(secret), saltBytes)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("salt file should be persisted: %v", err)
	}
}

func TestFileProvider_StableAcrossLoads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "salt")
	p := FileProvider{Path: path}

	first, err := p.Secret(ctx)
	if err != nil {
		t.Fatalf("first Secret: %v", err)
	}
	second, err := p.Secret(ctx)
	if err != nil {
		t.Fatalf("second Secret: %v", err)
	}
	if string(first) != string(second) {
		t.Fatal("secret must be stable across loads; identities would re-key otherwise")
	}
}

func TestFileProvider_ReadsExistingHexFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "salt")
	if err := os.WriteFile(path, []byte("00112233445566778899aabbccddeeff\n"), 0o600); err != nil {
		t.Fatalf("seed salt file: %v", err)
	}

	secret, err := FileProvider{Path: path}.Secret(ctx)
	if err != nil {
		t.Fatalf("Secret: %v", err)
	}
	if len(secret) != 16 {
		t.Fatalf("decoded secret length = %d, want 16", len(secret))
	}
	if secret[0] != 0x00 || secret[15] != 0xff {
		t.Fatalf("decoded secret = %x, want 00...ff", secret)
	}
}

func TestFileProvider_RejectsNonHexFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "salt")
	if err := os.WriteFile(path, []byte("not hex at all\n"), 0o600); err != nil {
		t.Fatalf("seed salt file: %v", err)
	}

	if _, err := (FileProvider{Path: path}).Secret(ctx); err == nil {
		t.Fatal("corrupt salt file should error, not silently re-key")
	}
}

func TestFileProvider_RejectsEmptyFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "salt")
	if err := os.WriteFile(path, []byte("\n"), 0o600); err != nil {
		t.Fatalf("seed salt file: %v", err)
	}

	if _, err := (FileProvider{Path: path}).Secret(ctx); err == nil {
		t.Fatal("empty salt file should error")
	}
}

func TestFileProvider_CreatesParentDir(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "deeper", "salt")

	if _, err := (FileProvider{Path: path}).Secret(ctx); err != nil {
		t.Fatalf("Secret with missing parent dirs: %v", err)
	}
}

func TestFileProvider_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "salt")

	if _, err := (FileProvider{Path: path}).Secret(ctx); err != nil {
		t.Fatalf("Secret: %v", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if got := fi.Mode().Perm(); got != 0o600 {
		t.Fatalf("salt file mode = %o, want 0600", got)
	}
}
