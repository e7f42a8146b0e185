package services

import (
	"context"
	"strings"
	"testing"

	"github.com/npm-registry/npm-registry/internal/db/models"
	"github.com/npm-registry/npm-registry/internal/db/repositories"
	"github.com/npm-registry/npm-registry/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishReq(name, version, author string) PublishRequest {
	return PublishRequest{
		Name:    name,
		Version: version,
		Author:  author,
		Manifest: models.Manifest{
			"description":  "test package",
			"dependencies": map[string]interface{}{"lib": "^1.0.0", "util": "~2.0.0"},
		},
	}
}

func TestPublish_FirstVersion(t *testing.T) {
	s := newTestServices()
	ctx := context.Background()

	res, err := s.publish.Publish(ctx, publishReq("app", "1.0.0", "alice"))
	require.NoError(t, err)
	assert.Equal(t, models.LatestTag, res.Tag)
	assert.NotZero(t, res.ID)

	stored, err := memModules{s.db}.Get(ctx, "app", "1.0.0")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Package.PublishedLocally())
	assert.Equal(t, "app", stored.Package["name"])
	assert.Equal(t, "alice", stored.Author)
	assert.NotZero(t, stored.PublishTime)

	latest, err := memModules{s.db}.GetLatestByName(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", latest.Version)

	assert.Equal(t, [][2]string{{"app", "lib"}, {"app", "util"}}, s.db.deps)
	assert.Equal(t, []string{"alice"}, s.db.maintainers["app"])
}

func TestPublish_DoesNotMutateCallerManifest(t *testing.T) {
	s := newTestServices()
	req := publishReq("app", "1.0.0", "alice")

	_, err := s.publish.Publish(context.Background(), req)
	require.NoError(t, err)
	assert.NotContains(t, req.Manifest, models.PublishedLocallyKey)
}

func TestPublish_MaintainerCanPublishAgain(t *testing.T) {
	s := newTestServices()
	ctx := context.Background()
	_, err := s.publish.Publish(ctx, publishReq("app", "1.0.0", "alice"))
	require.NoError(t, err)

	_, err = s.publish.Publish(ctx, publishReq("app", "1.1.0", "alice"))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, s.db.maintainers["app"])

	_, err = s.publish.Publish(ctx, publishReq("app", "1.2.0", "mallory"))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPublish_KeepsManifestMaintainers(t *testing.T) {
	s := newTestServices()
	ctx := context.Background()
	maintainers := []interface{}{
		map[string]interface{}{"name": "alice"},
		map[string]interface{}{"name": "carol"},
	}
	s.db.publishLocal("app", "1.0.0", models.Manifest{"maintainers": maintainers})

	req := publishReq("app", "1.1.0", "alice")
	req.Manifest["maintainers"] = maintainers
	_, err := s.publish.Publish(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, s.db.maintainers["app"])

	effective, err := s.maintainers.EffectiveMaintainers(ctx, "app")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "carol"}, effective)

	_, err = s.publish.Publish(ctx, publishReq("app", "1.2.0", "carol"))
	assert.NoError(t, err)
}

func TestPublish_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(db *memDB)
		req     PublishRequest
		wantErr error
	}{
		{
			name:    "invalid version",
			req:     publishReq("app", "1.0", "alice"),
			wantErr: ErrInvalidVersion,
		},
		{
			name:    "invalid name",
			req:     publishReq("App", "1.0.0", "alice"),
			wantErr: ErrInvalidName,
		},
		{
			name:    "tag that looks like a version",
			req:     PublishRequest{Name: "app", Version: "1.0.0", Author: "alice", Tag: "2.0.0"},
			wantErr: ErrInvalidName,
		},
		{
			name:    "existing version",
			setup:   func(db *memDB) { db.publishLocal("app", "1.0.0", nil) },
			req:     publishReq("app", "1.0.0", "alice"),
			wantErr: ErrVersionExists,
		},
		{
			name:    "upstream-synced package",
			setup:   func(db *memDB) { db.publishUpstream("app", "1.0.0", nil) },
			req:     publishReq("app", "2.0.0", "alice"),
			wantErr: ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServices()
			if tt.setup != nil {
				tt.setup(s.db)
			}
			_, err := s.publish.Publish(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPublish_CustomTagLeavesLatest(t *testing.T) {
	s := newTestServices()
	ctx := context.Background()
	_, err := s.publish.Publish(ctx, publishReq("app", "1.0.0", "alice"))
	require.NoError(t, err)

	req := publishReq("app", "2.0.0-beta.1", "alice")
	req.Tag = "beta"
	res, err := s.publish.Publish(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "beta", res.Tag)

	tags, _ := memTags{s.db}.ListByName(ctx, "app")
	byTag := map[string]string{}
	for _, tag := range tags {
		byTag[tag.Tag] = tag.Version
	}
	assert.Equal(t, map[string]string{"latest": "1.0.0", "beta": "2.0.0-beta.1"}, byTag)
}

func TestPublish_StoreFailure(t *testing.T) {
	s := newTestServices()
	s.db.fail("modules.Save", errStore)

	_, err := s.publish.Publish(context.Background(), publishReq("app", "1.0.0", "alice"))
	assert.ErrorIs(t, err, errStore)
	assert.Empty(t, s.db.tags)
}

func TestUnpublish_RepointsLatest(t *testing.T) {
	s := newTestServices()
	ctx := context.Background()
	for _, v := range []string{"1.0.0", "1.2.0", "1.1.0"} {
		_, err := s.publish.Publish(ctx, publishReq("app", v, "alice"))
		require.NoError(t, err)
	}

	res, err := s.publish.Unpublish(ctx, "app", []string{"1.1.0"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Removed)
	assert.Equal(t, "1.2.0", res.Latest)
	assert.False(t, res.Deleted)

	latest, err := memModules{s.db}.GetLatestByName(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", latest.Version)
}

func TestUnpublish_KeepsLatestWhenUntouched(t *testing.T) {
	s := newTestServices()
	ctx := context.Background()
	_, err := s.publish.Publish(ctx, publishReq("app", "1.0.0", "alice"))
	require.NoError(t, err)
	_, err = s.publish.Publish(ctx, publishReq("app", "1.1.0", "alice"))
	require.NoError(t, err)

	res, err := s.publish.Unpublish(ctx, "app", []string{"1.0.0"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", res.Latest)
}

func TestUnpublish_LastVersionRemovesPackage(t *testing.T) {
	s := newTestServices()
	ctx := context.Background()
	_, err := s.publish.Publish(ctx, publishReq("app", "1.0.0", "alice"))
	require.NoError(t, err)

	res, err := s.publish.Unpublish(ctx, "app", []string{"1.0.0"}, "alice")
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.Empty(t, s.db.tags)
	assert.NotContains(t, s.db.maintainers, "app")
}

func TestUnpublish_Forbidden(t *testing.T) {
	s := newTestServices()
	ctx := context.Background()
	_, err := s.publish.Publish(ctx, publishReq("app", "1.0.0", "alice"))
	require.NoError(t, err)

	_, err = s.publish.Unpublish(ctx, "app", []string{"1.0.0"}, "mallory")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUnpublish_UnknownVersion(t *testing.T) {
	s := newTestServices()
	ctx := context.Background()
	_, err := s.publish.Publish(ctx, publishReq("app", "1.0.0", "alice"))
	require.NoError(t, err)

	_, err = s.publish.Unpublish(ctx, "app", []string{"9.9.9"}, "alice")
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestSetTagAndRemoveTag(t *testing.T) {
	s := newTestServices()
	ctx := context.Background()
	_, err := s.publish.Publish(ctx, publishReq("app", "1.0.0", "alice"))
	require.NoError(t, err)

	_, err = s.publish.SetTag(ctx, "app", "stable", "1.0.0", "alice")
	require.NoError(t, err)

	_, err = s.publish.SetTag(ctx, "app", strings.Repeat("x", validation.MaxTagNameLength+1), "1.0.0", "alice")
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.Len(t, s.db.tags, 2)

	_, err = s.publish.SetTag(ctx, "app", "stable", "9.9.9", "alice")
	assert.ErrorIs(t, err, repositories.ErrConstraintViolation)

	_, err = s.publish.SetTag(ctx, "app", "stable", "1.0.0", "mallory")
	assert.ErrorIs(t, err, ErrForbidden)

	assert.ErrorIs(t, s.publish.RemoveTag(ctx, "app", models.LatestTag, "alice"), repositories.ErrConstraintViolation)
	require.NoError(t, s.publish.RemoveTag(ctx, "app", "stable", "alice"))
	assert.ErrorIs(t, s.publish.RemoveTag(ctx, "app", "stable", "alice"), repositories.ErrNotFound)
}
