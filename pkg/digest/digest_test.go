package digest_test

import (
	"strings"
	"testing"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	digest "github.com/mutablelogic/go-upload/pkg/digest"
	assert "github.com/stretchr/testify/assert"
)

func Test_Parse(t *testing.T) {
	assert := assert.New(t)

	alg, err := digest.Parse("")
	assert.NoError(err)
	assert.Equal(digest.MD5, alg)

	alg, err = digest.Parse(" BLAKE3 ")
	assert.NoError(err)
	assert.Equal(digest.BLAKE3, alg)

	_, err = digest.Parse("crc32")
	assert.ErrorIs(err, httpresponse.ErrBadRequest)
}

func Test_Sum(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("5d41402abc4b2a76b9719d911017c592", digest.MD5.Sum([]byte("hello")))
	assert.Equal("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", digest.SHA256.Sum([]byte("hello")))
	for _, alg := range []digest.Algorithm{digest.MD5, digest.SHA256, digest.BLAKE3} {
		t.Run(alg.String(), func(t *testing.T) {
			sum := alg.Sum([]byte("hello"))
			assert.Len(sum, alg.Size()*2)
			reader, n, err := alg.Reader(strings.NewReader("hello"))
			assert.NoError(err)
			assert.Equal(int64(5), n)
			assert.Equal(sum, reader)
			valid, err := alg.Validate(strings.ToUpper(sum))
			assert.NoError(err)
			assert.Equal(sum, valid)
		})
	}
}

func Test_Validate(t *testing.T) {
	assert := assert.New(t)

	_, err := digest.MD5.Validate("")
	assert.ErrorIs(err, httpresponse.ErrBadRequest)
	_, err = digest.MD5.Validate("zz41402abc4b2a76b9719d911017c592")
	assert.ErrorIs(err, httpresponse.ErrBadRequest)
	_, err = digest.SHA256.Validate("5d41402abc4b2a76b9719d911017c592")
	assert.ErrorIs(err, httpresponse.ErrBadRequest)
}

func Test_ETag(t *testing.T) {
	assert := assert.New(t)

	etag := digest.ETag([]byte("hello"))
	assert.Equal(`"5d41402abc4b2a76b9719d911017c592"`, etag)
	assert.Equal(etag, digest.ETag([]byte("hello")))
	assert.NotEqual(etag, digest.ETag([]byte("hello!")))
	assert.Equal("5d41402abc4b2a76b9719d911017c592", digest.NormaliseETag(etag))
	assert.Equal("5d41402abc4b2a76b9719d911017c592", digest.NormaliseETag(`W/"5D41402ABC4B2A76B9719D911017C592"`))
}
