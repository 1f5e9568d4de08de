package secret

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	box, err := LoadOrCreate(KeyPath(t.TempDir()))
	require.NoError(t, err)

	enc, err := box.Encrypt("hunter2")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(enc))
	assert.NotContains(t, enc, "hunter2")
	assert.NotContains(t, enc, "\n")

	plain, err := box.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)
}

func TestDecrypt_PlainPassesThrough(t *testing.T) {
	box, err := LoadOrCreate(KeyPath(t.TempDir()))
	require.NoError(t, err)

	plain, err := box.Decrypt("not-secret")
	require.NoError(t, err)
	assert.Equal(t, "not-secret", plain)
}

func TestDecrypt_Garbage(t *testing.T) {
	box, err := LoadOrCreate(KeyPath(t.TempDir()))
	require.NoError(t, err)

	_, err = box.Decrypt("enc:!!!")
	assert.Error(t, err)
	_, err = box.Decrypt("enc:aGVsbG8=")
	assert.Error(t, err)
}

func TestLoadOrCreate_ReusesKey(t *testing.T) {
	dir := t.TempDir()
	path := KeyPath(dir)

	first, err := LoadOrCreate(path)
	require.NoError(t, err)
	enc, err := first.Encrypt("abc")
	require.NoError(t, err)

	second, err := LoadOrCreate(path)
	require.NoError(t, err)
	plain, err := second.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "abc", plain)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "AGE-SECRET-KEY-"))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestLoadOrCreate_OtherKeyCannotDecrypt(t *testing.T) {
	a, err := LoadOrCreate(KeyPath(t.TempDir()))
	require.NoError(t, err)
	b, err := LoadOrCreate(KeyPath(t.TempDir()))
	require.NoError(t, err)

	enc, err := a.Encrypt("abc")
	require.NoError(t, err)
	_, err = b.Decrypt(enc)
	assert.Error(t, err)
}

func TestLoadOrCreate_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qsolog.key")
	require.NoError(t, os.WriteFile(path, []byte("not a key\n"), 0600))

	_, err := LoadOrCreate(path)
	assert.Error(t, err)
}

func TestReveal(t *testing.T) {
	dir := t.TempDir()

	plain, err := Reveal(dir, "plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", plain)
	_, err = os.Stat(KeyPath(dir))
	assert.True(t, os.IsNotExist(err), "plain values must not create a key")

	box, err := LoadOrCreate(KeyPath(dir))
	require.NoError(t, err)
	enc, err := box.Encrypt("s3cret")
	require.NoError(t, err)

	plain, err = Reveal(dir, enc)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", plain)
}
