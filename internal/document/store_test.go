package document

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/config"
)

func TestRefIsContentAddressed(t *testing.T) {
	a := Ref([]byte("certificate of analysis"))
	b := Ref([]byte("certificate of analysis"))
	c := Ref([]byte("certificate of analysis."))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "sha256:"))
	assert.Len(t, a, len("sha256:")+64)
}

func TestParseRef(t *testing.T) {
	ref := Ref([]byte("x"))
	digest, err := ParseRef("  " + strings.ToUpper(ref) + " ")
	require.NoError(t, err)
	assert.Equal(t, strings.TrimPrefix(ref, "sha256:"), digest)

	for _, bad := range []string{"", "sha256:", "md5:abcd", "sha256:" + strings.Repeat("z", 64), "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"} {
		_, err := ParseRef(bad)
		assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err), bad)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	obj, err := s.Put(ctx, []byte("%PDF-1.7"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(8), obj.Size)

	got, err := s.Get(ctx, obj.Ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), got.Data)
	assert.Equal(t, "application/pdf", got.ContentType)

	got.Data[0] = 'X'
	again, err := s.Get(ctx, obj.Ref)
	require.NoError(t, err)
	assert.Equal(t, byte('%'), again.Data[0])

	_, err = s.Get(ctx, Ref([]byte("missing")))
	assert.True(t, errors.Is(err, apperror.ErrDocumentNotFound))
	assert.NoError(t, s.Ping(ctx))
}

func TestUploadLimits(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Put(context.Background(), nil, "text/plain")
	assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
	_, err = s.Put(context.Background(), make([]byte, MaxSize+1), "text/plain")
	assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
}

func TestNewStoreBackends(t *testing.T) {
	s, err := NewStore(context.Background(), config.StorageConfig{Backend: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = NewStore(context.Background(), config.StorageConfig{Backend: "ipfs"}, nil)
	assert.Error(t, err)

	_, err = NewS3Store(context.Background(), config.StorageConfig{Backend: "s3"}, nil)
	assert.Error(t, err)

	s, err = NewStore(context.Background(), config.StorageConfig{
		Backend: "s3", Endpoint: "localhost:9000", Bucket: "docs", AccessKey: "k", SecretKey: "s", PathStyle: true,
	}, nil)
	require.NoError(t, err)
	assert.IsType(t, &S3Store{}, s)
}
