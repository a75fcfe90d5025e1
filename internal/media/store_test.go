package media

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/testutil"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, maxMB int) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(config.MediaConfig{Dir: t.TempDir(), PublicPath: "/images/", MaxUploadMB: maxMB}, nil)
	require.NoError(t, err)
	return store
}

func TestLocalStoreSavesSniffedImage(t *testing.T) {
	store := newTestStore(t, 1)

	saved, err := store.Save(context.Background(), Upload{FileName: "../My Shoe.png", Body: bytes.NewReader(testutil.PNG)})
	require.NoError(t, err)

	assert.Equal(t, "image/png", saved.ContentType)
	assert.Equal(t, int64(len(testutil.PNG)), saved.SizeBytes)
	assert.True(t, strings.HasPrefix(saved.Path, "images/"))
	assert.True(t, strings.HasSuffix(saved.Path, "_My-Shoe.png"), saved.Path)

	onDisk, err := os.ReadFile(filepath.Join(store.Dir(), strings.TrimPrefix(saved.Path, "images/")))
	require.NoError(t, err)
	assert.Equal(t, testutil.PNG, onDisk)
}

func TestLocalStoreRejectsNonImage(t *testing.T) {
	store := newTestStore(t, 1)

	_, err := store.Save(context.Background(), Upload{FileName: "notes.png", Body: strings.NewReader("just some text")})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStoreRejectsOversizeUpload(t *testing.T) {
	store := newTestStore(t, 1)
	body := append(append([]byte{}, testutil.PNG...), bytes.Repeat([]byte{0}, 1<<20)...)

	_, err := store.Save(context.Background(), Upload{FileName: "big.png", Body: bytes.NewReader(body)})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "partial file should be removed")
}

func TestLocalStoreRemove(t *testing.T) {
	store := newTestStore(t, 1)
	ctx := context.Background()

	saved, err := store.Save(ctx, Upload{FileName: "a.png", Body: bytes.NewReader(testutil.PNG)})
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, saved.Path))
	require.NoError(t, store.Remove(ctx, saved.Path), "second remove is a no-op")

	assert.Error(t, store.Remove(ctx, "../etc/passwd"))
	assert.Error(t, store.Remove(ctx, "images/../secret"))
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"photo.png":           "photo.png",
		"  my photo.png ":     "my-photo.png",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\pic.jpg`: "pic.jpg",
		"weird$name!.gif":     "weird_name_.gif",
		"":                    "",
		"..":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeFileName(in), "input %q", in)
	}
}

func TestRepositoryListOrphans(t *testing.T) {
	client := testutil.OpenDB(t)
	conn := client.DB()
	ctx := context.Background()
	repo := NewRepository(conn)

	orphan := testutil.MustCreateImage(t, conn, "orphan.png")
	categoryImage := testutil.MustCreateImage(t, conn, "category.png")
	productImage := testutil.MustCreateImage(t, conn, "product.png")
	testutil.MustCreateCategory(t, conn, "Shoes", categoryImage)
	product := testutil.MustCreateProduct(t, conn, "Boot", "10.00", "")
	require.NoError(t, conn.Create(&models.ProductImage{ProductID: product.ID, ImageID: productImage.ID}).Error)

	orphans, err := repo.ListOrphans(ctx, time.Now().UTC().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, orphan.ID, orphans[0].ID)

	none, err := repo.ListOrphans(ctx, time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	deleted, err := repo.DeleteByIDs(ctx, []uuid.UUID{orphan.ID})
	require.NoError(t, err)
	assert.Len(t, deleted, 1)
	assert.Equal(t, int64(2), testutil.Count(t, conn, &models.Image{}))
}
