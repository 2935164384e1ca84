package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"
)

// Archiver keeps a copy of callback-delivered files in S3 before they are
// consumed from the in-memory store. Archived objects are encrypted with a
// password-derived key so bucket access alone does not expose customer files.
type Archiver struct {
	client   *s3.Client
	bucket   string
	password string
}

// Envelope: magic(8) + salt(16) + nonce(12) + ciphertext||tag.
const gcmMagic = "GCM3NCR0"

// NewArchiver creates an S3-backed archiver. Credentials come from the
// default AWS chain.
func NewArchiver(ctx context.Context, bucket, password string) (*Archiver, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Archiver{
		client:   s3.NewFromConfig(cfg),
		bucket:   bucket,
		password: password,
	}, nil
}

// Archive encrypts and uploads one file under archive/<jobID>/<fileName>.
func (a *Archiver) Archive(ctx context.Context, jobID, fileName, contentType string, data []byte) error {
	enc, err := a.encryptGCM(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt archive data: %w", err)
	}

	key := fmt.Sprintf("archive/%s/%s", jobID, fileName)
	meta := map[string]string{
		"name":          fileName,
		"content-type":  contentType,
		"job-id":        jobID,
		"encrypted":     "true",
		"plain-size":    strconv.Itoa(len(data)),
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(a.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(enc),
		Metadata: meta,
	})
	if err != nil {
		return fmt.Errorf("failed to upload archive object: %w", err)
	}

	log.Info().
		Str("job_id", jobID).
		Str("key", key).
		Int("plaintext", len(data)).
		Int("encrypted", len(enc)).
		Msg("archived callback file to S3")
	return nil
}

func (a *Archiver) encryptGCM(data []byte) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := pbkdf2.Key([]byte(a.password), salt, 100000, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(gcmMagic)+len(salt)+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, gcmMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// Decrypt reverses encryptGCM; used by operational tooling and tests.
func (a *Archiver) Decrypt(enc []byte) ([]byte, error) {
	if len(enc) < 8+16+12+16 {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(enc))
	}
	if string(enc[:8]) != gcmMagic {
		return nil, fmt.Errorf("unknown encryption format")
	}
	salt := enc[8:24]
	nonce := enc[24:36]
	key := pbkdf2.Key([]byte(a.password), salt, 100000, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	plain, err := gcm.Open(nil, nonce, enc[36:], nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plain, nil
}
