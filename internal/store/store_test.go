package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-vision-core/internal/config"
	"github.com/technosupport/ts-vision-core/internal/crypto"
)

func testKeyring(t *testing.T) *crypto.Keyring {
	t.Helper()
	key, err := crypto.GenerateDEK()
	require.NoError(t, err)
	keys := []map[string]string{{"kid": "test-kid", "material": base64.StdEncoding.EncodeToString(key)}}
	keysJSON, err := json.Marshal(keys)
	require.NoError(t, err)

	t.Setenv("MASTER_KEYS", string(keysJSON))
	t.Setenv("ACTIVE_MASTER_KID", "test-kid")

	kr := crypto.NewKeyring()
	require.NoError(t, kr.LoadFromEnv())
	return kr
}

func TestListVideoSourcesScansRowsAndOptions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	kr := testKeyring(t)
	env, err := kr.SealCredentials("admin", "hunter2", crypto.CredentialAAD("cam1"))
	require.NoError(t, err)
	envelopeJSON, err := json.Marshal(env)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"id", "name", "url", "cred_envelope", "width", "height", "fps",
		"preview_port", "enabled", "detection_enabled", "recording_enabled", "options", "created_at", "updated_at",
	}).AddRow(
		"cam1", "Lobby", "rtsp://cam1.local/stream", envelopeJSON, 1920, 1080, 15.0,
		8081, true, true, false, []byte(`{"detection":{"confidence_threshold":0.5,"backend":"AUTO"},"stream":{"fps":10},"person_stats":{"enabled":true}}`),
		time.Now(), time.Now(),
	)
	mock.ExpectQuery("SELECT id, name, url").WillReturnRows(rows)

	s := NewPostgresStore(db, kr)
	recs, err := s.ListVideoSources(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "cam1", recs[0].ID)
	require.Equal(t, "admin", recs[0].Credentials.Username)
	require.Equal(t, "hunter2", recs[0].Credentials.Password)
	require.Equal(t, float32(0.5), recs[0].Detection.ConfidenceThreshold)
	require.True(t, recs[0].PersonStats.Enabled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertVideoSourceRejectsInvalidRecord(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db, testKeyring(t))
	err = s.UpsertVideoSource(context.Background(), VideoSourceRecord{VideoSource: config.VideoSource{ID: "", URL: "rtsp://x"}})
	require.Error(t, err)
}

func TestUpsertVideoSourceExecutesUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO video_sources").WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewPostgresStore(db, testKeyring(t))
	err = s.UpsertVideoSource(context.Background(), VideoSourceRecord{
		VideoSource: config.VideoSource{
			ID: "cam1", URL: "rtsp://cam1.local/stream", Enabled: true,
			Credentials: &config.Credentials{Username: "admin", Password: "hunter2"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteVideoSourceReturnsNotFoundWhenNoRowsAffected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM video_sources").WillReturnResult(sqlmock.NewResult(0, 0))

	s := NewPostgresStore(db, testKeyring(t))
	err = s.DeleteVideoSource(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRecordNotFound)
}
