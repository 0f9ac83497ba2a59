package storage

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/lib/pq"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
)

func TestClassifyMinio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		notFound    bool
		unavailable bool
	}{
		{
			name:     "missing object",
			err:      miniogo.ErrorResponse{Code: minioNoSuchKey, StatusCode: 404},
			notFound: true,
		},
		{
			name:     "missing bucket",
			err:      fmt.Errorf("stat: %w", miniogo.ErrorResponse{Code: minioNoSuchBucket, StatusCode: 404}),
			notFound: true,
		},
		{
			name:        "connection refused",
			err:         &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
			unavailable: true,
		},
		{
			name: "access denied",
			err:  miniogo.ErrorResponse{Code: "AccessDenied", StatusCode: 403},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := classifyMinio("get asset", tt.err)
			assert.Equal(t, tt.notFound, errors.Is(got, domain.ErrNotFound))
			assert.Equal(t, tt.unavailable, errors.Is(got, domain.ErrUnavailable))
			if !tt.notFound {
				assert.ErrorIs(t, got, tt.err)
			}
		})
	}
}

func TestUncertainWrite(t *testing.T) {
	t.Parallel()

	dial := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	assert.Same(t, error(dial), uncertainWrite(dial))

	read := &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}
	got := uncertainWrite(read)
	assert.ErrorIs(t, got, domain.ErrOutcomeUnknown)
	assert.False(t, domain.IsTransient(classifyRedis("update record", got)))

	plain := errors.New("WRONGTYPE")
	assert.Equal(t, plain, uncertainWrite(plain))
}

func TestClassifyCommit(t *testing.T) {
	t.Parallel()

	rolledBack := classifyCommit(&pq.Error{Code: pqSerializationFailure})
	assert.ErrorIs(t, rolledBack, domain.ErrConflict)
	assert.NotErrorIs(t, rolledBack, domain.ErrOutcomeUnknown)

	lost := classifyCommit(&net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET})
	assert.ErrorIs(t, lost, domain.ErrOutcomeUnknown)
	assert.False(t, domain.IsTransient(lost))
}
