// Package submission implements the submission service (C5): upload
// validation, ZIP parsing, blob storage, SubmissionArtifact creation, and
// view-cache invalidation, per spec.md §4.4.
package submission

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/blob"
	"github.com/computor-platform/computor-api/internal/domain"
	"github.com/computor-platform/computor-api/internal/viewcache"
)

// Repo is the persistence slice the submission service needs.
type Repo interface {
	GetSubmissionGroup(ctx context.Context, groupID string) (*domain.SubmissionGroup, error)
	GetCourseContent(ctx context.Context, contentID string) (*domain.CourseContent, error)
	GetCourseContentType(ctx context.Context, typeID string) (*domain.CourseContentType, error)
	IsGroupMember(ctx context.Context, groupID, courseMemberID string) (bool, error)
	CountSubmissions(ctx context.Context, groupID string) (int, error)
	ListGroupMemberUserIDs(ctx context.Context, groupID string) ([]string, error)
	CreateSubmissionArtifact(ctx context.Context, artifact domain.SubmissionArtifact) (*domain.SubmissionArtifact, error)
}

// UploadRequest is the (group_id, file_bytes, filename, ...) input per
// spec.md §4.4.
type UploadRequest struct {
	SubmissionGroupID string
	CourseMemberID    string
	UploaderUserID    string
	FileBytes         []byte
	Filename          string
	ContentType       string
	VersionIdentifier string
	Submit            bool
	// ElevatedCourseRole reports whether the caller holds a course role
	// above student, bypassing the "member of group" precondition.
	ElevatedCourseRole bool
}

type UploadResult struct {
	ArtifactID        string
	UploaderUserID    string
	SizeBytes         int64
	VersionIdentifier string
}

const maxZipEntriesScanned = 10000

type Service struct {
	repo           Repo
	blob           *blob.Store
	cache          *viewcache.Cache
	maxUploadBytes int64
}

func New(repo Repo, blobStore *blob.Store, cache *viewcache.Cache, maxUploadBytes int64) *Service {
	return &Service{repo: repo, blob: blobStore, cache: cache, maxUploadBytes: maxUploadBytes}
}

// Upload validates and stores one ZIP archive, creating a SubmissionArtifact
// and invalidating the view caches of every member of the group.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	group, err := s.repo.GetSubmissionGroup(ctx, req.SubmissionGroupID)
	if err != nil {
		return nil, apierr.Database(err, "load submission group")
	}
	if group == nil {
		return nil, apierr.NotFound("SubmissionGroup", req.SubmissionGroupID)
	}

	content, err := s.repo.GetCourseContent(ctx, group.CourseContentID)
	if err != nil {
		return nil, apierr.Database(err, "load course content")
	}
	if content == nil {
		return nil, apierr.NotFound("CourseContent", group.CourseContentID)
	}

	contentType, err := s.repo.GetCourseContentType(ctx, content.CourseContentTypeID)
	if err != nil {
		return nil, apierr.Database(err, "load course content type")
	}
	if contentType == nil {
		return nil, apierr.BadRequest("course content has no content type configured")
	}

	if !req.ElevatedCourseRole {
		isMember, err := s.repo.IsGroupMember(ctx, req.SubmissionGroupID, req.CourseMemberID)
		if err != nil {
			return nil, apierr.Database(err, "check group membership")
		}
		if !isMember {
			return nil, apierr.Forbidden("principal is not a member of submission group %q", req.SubmissionGroupID)
		}
	}

	if contentType.ExecutionBackendID == "" {
		return nil, apierr.BadRequest("content has no configured execution backend")
	}

	if !strings.HasSuffix(strings.ToLower(req.Filename), ".zip") {
		return nil, apierr.UploadInvalid("filename must end in .zip")
	}

	if len(req.FileBytes) == 0 {
		return nil, apierr.UploadInvalid("uploaded file is empty")
	}

	totalUncompressed, nonEmptyFiles, err := inspectZip(req.FileBytes)
	if err != nil {
		return nil, apierr.UploadInvalid("archive could not be parsed: %v", err)
	}
	if nonEmptyFiles == 0 {
		return nil, apierr.UploadInvalid("archive contains no non-empty files")
	}
	if s.maxUploadBytes > 0 && totalUncompressed > s.maxUploadBytes {
		return nil, apierr.UploadInvalid("uncompressed archive size %d exceeds maximum %d", totalUncompressed, s.maxUploadBytes)
	}

	if group.MaxSubmissions != nil {
		count, err := s.repo.CountSubmissions(ctx, req.SubmissionGroupID)
		if err != nil {
			return nil, apierr.Database(err, "count existing submissions")
		}
		if count >= *group.MaxSubmissions {
			return nil, apierr.BadRequest("submission group has reached its max_submissions limit")
		}
	}

	objectKey, err := buildObjectKey(req.Filename)
	if err != nil {
		return nil, apierr.Internal(err, "generate object key")
	}

	bucket := blob.SubmissionGroupBucket(req.SubmissionGroupID)
	size, err := s.blob.Put(ctx, bucket, objectKey, bytes.NewReader(req.FileBytes), int64(len(req.FileBytes)), req.ContentType)
	if err != nil {
		return nil, apierr.External(apierr.CodeExternalBlob, err, "upload archive to blob storage")
	}

	versionIdentifier := req.VersionIdentifier
	if versionIdentifier == "" {
		versionIdentifier = objectKey
	}

	artifact, err := s.repo.CreateSubmissionArtifact(ctx, domain.SubmissionArtifact{
		SubmissionGroupID: req.SubmissionGroupID,
		Bucket:            bucket,
		ObjectKey:         objectKey,
		VersionIdentifier: versionIdentifier,
		Filename:          req.Filename,
		ContentType:       req.ContentType,
		SizeBytes:         size,
		Submit:            req.Submit,
		UploadedByUserID:  req.UploaderUserID,
	})
	if err != nil {
		return nil, apierr.Database(err, "create submission artifact")
	}

	if err := s.invalidateViews(ctx, content.CourseID, content.ID, req.SubmissionGroupID); err != nil {
		return nil, apierr.Internal(err, "invalidate view cache after upload")
	}

	return &UploadResult{
		ArtifactID:        artifact.ID,
		UploaderUserID:    artifact.UploadedByUserID,
		SizeBytes:         artifact.SizeBytes,
		VersionIdentifier: artifact.VersionIdentifier,
	}, nil
}

func (s *Service) invalidateViews(ctx context.Context, courseID, contentID, submissionGroupID string) error {
	return s.cache.InvalidateTags(ctx,
		"course:"+courseID,
		"course_content:"+contentID,
		"submission_group:"+submissionGroupID,
	)
}

func buildObjectKey(filename string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("submission-%d-%s/%s", time.Now().UTC().Unix(), hex.EncodeToString(buf), filename), nil
}

// inspectZip walks the archive's central directory, returning the total
// uncompressed size and the count of non-empty files, without extracting
// anything to disk.
func inspectZip(data []byte) (totalUncompressed int64, nonEmptyFiles int, err error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, 0, err
	}

	for i, f := range r.File {
		if i >= maxZipEntriesScanned {
			break
		}
		if f.FileInfo().IsDir() {
			continue
		}
		if f.UncompressedSize64 > 0 {
			nonEmptyFiles++
		}
		totalUncompressed += int64(f.UncompressedSize64)
	}

	return totalUncompressed, nonEmptyFiles, nil
}
