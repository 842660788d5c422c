package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meghashyamc/omnisearch/db/kvdb"
	"github.com/meghashyamc/omnisearch/db/searchdb"
	"github.com/meghashyamc/omnisearch/logger"
	"golang.org/x/time/rate"
)

// Indexer is the part of the search database the index service writes to.
type Indexer interface {
	BuildIndex(documents []searchdb.Document) error
	DeleteDocuments(documentIDs []string) error
}

// MetadataStore keeps per-file index metadata and request progress.
type MetadataStore interface {
	Set(bucket string, key string, value string) error
	Get(bucket string, key string) (string, error)
	Delete(bucket string, key string) error
	GetAllKeys(bucket string) ([]string, error)
}

const (
	ProgressStatusStep1    = 10
	ProgressStatusStep2    = 20
	ProgressStatusComplete = 100
	ProgressStatusFailed   = -1

	maxGoRoutinesForFileProcessing = 50
	maxIndexBuildingTime           = 2 * time.Hour
	defaultBatchSize               = 100
	defaultReindexPerSecond        = 0.2
)

var ErrBuildInProgress = errors.New("indexing already in progress")

type Options struct {
	// BatchSize is the number of files extracted and committed together.
	BatchSize int
	// ReindexPerSecond limits rebuilds triggered by MarkStale.
	ReindexPerSecond float64
}

type Service struct {
	logger        logger.Logger
	indexer       Indexer
	metadataStore MetadataStore
	batchSize     int
	limiter       *rate.Limiter
	buildIndexC   chan indexRequest
	staleC        chan struct{}

	mu       sync.RWMutex
	building bool
	roots    map[string][]string
}

type indexRequest struct {
	rootPath       string
	excludeFolders []string
	requestID      string
}

func New(ctx context.Context, logger logger.Logger, indexer Indexer, metadataStore MetadataStore, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.ReindexPerSecond <= 0 {
		opts.ReindexPerSecond = defaultReindexPerSecond
	}

	indexService := &Service{
		logger:        logger,
		indexer:       indexer,
		metadataStore: metadataStore,
		batchSize:     opts.BatchSize,
		limiter:       rate.NewLimiter(rate.Limit(opts.ReindexPerSecond), 1),
		buildIndexC:   make(chan indexRequest, 1),
		staleC:        make(chan struct{}, 1),
		roots:         make(map[string][]string),
	}

	go indexService.build(ctx)
	return indexService
}

// Build queues an index of rootPath, or an incremental update if it was
// indexed before. It returns ErrBuildInProgress while another requested
// build is running.
func (s *Service) Build(rootPath string, excludeFolders []string, requestID string) error {
	rootPath = filepath.Clean(rootPath)

	s.mu.Lock()
	if s.building {
		s.mu.Unlock()
		s.logger.Warn("request to index while indexing is already in progress", "request_id", requestID)
		return ErrBuildInProgress
	}
	s.building = true
	s.roots[rootPath] = excludeFolders
	s.mu.Unlock()

	s.setRequestStatus(requestID, 0)
	s.buildIndexC <- indexRequest{rootPath: rootPath, excludeFolders: excludeFolders, requestID: requestID}
	return nil
}

// GetStatus retrieves the progress of a build request.
func (s *Service) GetStatus(requestID string) (int, error) {
	value, err := s.metadataStore.Get(kvdb.RequestsBucket, requestID)
	if err != nil {
		return 0, fmt.Errorf("request not found: %w", err)
	}

	status, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid status value: %w", err)
	}

	return status, nil
}

// Covers reports whether path lies under a root that has been indexed.
func (s *Service) Covers(path string) bool {
	path = filepath.Clean(path)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for root := range s.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// MarkStale schedules an incremental rebuild of every indexed root. Calls
// made while a rebuild is already queued are folded into it.
func (s *Service) MarkStale() {
	select {
	case s.staleC <- struct{}{}:
	default:
	}
}

func (s *Service) build(ctx context.Context) {
	for {
		select {
		case req := <-s.buildIndexC:
			status := s.runBuild(ctx, req)
			s.mu.Lock()
			s.building = false
			s.mu.Unlock()
			s.setRequestStatus(req.requestID, status)

		case <-s.staleC:
			if err := s.limiter.Wait(ctx); err != nil {
				s.logger.Info("index service stopped", "reason", err.Error())
				return
			}
			for _, req := range s.rebuildRequests() {
				s.logger.Info("rebuilding stale index", "root", req.rootPath, "request_id", req.requestID)
				s.setRequestStatus(req.requestID, s.runBuild(ctx, req))
			}

		case <-ctx.Done():
			s.logger.Info("index service stopped", "reason", ctx.Err())
			return
		}
	}
}

// runBuild returns the final progress status of the request.
func (s *Service) runBuild(ctx context.Context, req indexRequest) int {
	indexTimeoutCtx, cancel := context.WithTimeout(ctx, maxIndexBuildingTime)
	defer cancel()

	return s.buildIndex(indexTimeoutCtx, req.rootPath, req.excludeFolders, req.requestID)
}

func (s *Service) rebuildRequests() []indexRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	requests := make([]indexRequest, 0, len(s.roots))
	for root, exclude := range s.roots {
		requests = append(requests, indexRequest{rootPath: root, excludeFolders: exclude, requestID: uuid.NewString()})
	}
	return requests
}

func (s *Service) buildIndex(ctx context.Context, rootPath string, excludeFolders []string, requestID string) int {
	files, err := s.discoverModifiedFiles(rootPath, excludeFolders)
	if err != nil {
		s.logger.Error("failed to discover files to index", "request_id", requestID, "err", err.Error())
		return ProgressStatusFailed
	}
	s.logger.Info("discovered modified files", "request_id", requestID, "num_of_files", len(files))
	s.setRequestStatus(requestID, ProgressStatusStep1)

	deletedFiles, err := s.getDeletedFiles(rootPath)
	if err != nil {
		s.logger.Error("failed to find deleted files", "request_id", requestID, "err", err.Error())
		return ProgressStatusFailed
	}

	if err := s.removeDeletedFiles(deletedFiles); err != nil {
		s.logger.Error("failed to remove deleted files", "request_id", requestID, "err", err.Error())
		return ProgressStatusFailed
	}
	s.setRequestStatus(requestID, ProgressStatusStep2)

	return s.doBuildIndex(ctx, files, requestID)
}

func (s *Service) removeDeletedFiles(deletedFiles []string) error {
	if len(deletedFiles) == 0 {
		return nil
	}
	s.logger.Info("removing deleted files from index", "deleted_files", len(deletedFiles))
	if err := s.indexer.DeleteDocuments(deletedFiles); err != nil {
		s.logger.Error("failed to delete documents from search index", "err", err.Error())
		return fmt.Errorf("failed to delete documents from search index: %w", err)
	}

	for _, path := range deletedFiles {
		if err := s.metadataStore.Delete(kvdb.FilesBucket, path); err != nil {
			s.logger.Error("failed to delete file metadata", "path", path, "err", err.Error())
		}
	}
	return nil
}

// doBuildIndex splits files across worker goroutines. Each worker extracts
// and commits its files in batches and hands the committed files to a
// single metadata writer.
func (s *Service) doBuildIndex(ctx context.Context, files []FileInfo, requestID string) int {
	if len(files) == 0 {
		s.logger.Info("no files to index", "request_id", requestID)
		return ProgressStatusComplete
	}

	indexTime := time.Now().UTC()
	numWorkers := min(maxGoRoutinesForFileProcessing, len(files))
	filesPerWorker := (len(files) + numWorkers - 1) / numWorkers

	committedC := make(chan []FileInfo, numWorkers)
	var workersWG sync.WaitGroup

	s.logger.Info("starting parallel indexing", "request_id", requestID, "workers", numWorkers, "files_per_worker", filesPerWorker)

	for start := 0; start < len(files); start += filesPerWorker {
		end := min(start+filesPerWorker, len(files))
		workersWG.Add(1)
		go func(workerID int, portion []FileInfo) {
			defer workersWG.Done()
			s.indexPortion(ctx, workerID, portion, committedC)
		}(start/filesPerWorker, files[start:end])
	}

	go func() {
		workersWG.Wait()
		close(committedC)
	}()

	// Recording metadata keeps later builds from reindexing unchanged files.
	updated := s.updateMetadata(indexTime, requestID, len(files), committedC)

	if ctx.Err() != nil {
		s.logger.Error("indexing cancelled", "request_id", requestID, "err", ctx.Err())
		return ProgressStatusFailed
	}

	s.logger.Info("finished indexing", "request_id", requestID, "count", fmt.Sprintf("%d/%d", updated, len(files)))
	return ProgressStatusComplete
}

func (s *Service) indexPortion(ctx context.Context, workerID int, portion []FileInfo, committedC chan<- []FileInfo) {
	for i := 0; i < len(portion); i += s.batchSize {
		if ctx.Err() != nil {
			s.logger.Info("indexing worker cancelled", "worker_id", workerID, "reason", ctx.Err())
			return
		}
		committedC <- s.indexBatch(portion[i:min(i+s.batchSize, len(portion))], workerID)
	}
}

// indexBatch returns the files that made it into the index.
func (s *Service) indexBatch(batch []FileInfo, workerID int) []FileInfo {
	documents := make([]searchdb.Document, 0, len(batch))
	committed := make([]FileInfo, 0, len(batch))

	for _, file := range batch {
		doc, err := extractDocument(file)
		if err != nil {
			s.logger.Error("error processing file", "path", file.Path, "err", err.Error(), "worker_id", workerID)
			continue
		}
		documents = append(documents, doc)
		committed = append(committed, file)
	}

	if err := s.indexer.BuildIndex(documents); err != nil {
		s.logger.Error("failed to index batch", "worker_id", workerID, "err", err.Error())
		return nil
	}

	return committed
}

func (s *Service) updateMetadata(indexTime time.Time, requestID string, total int, committedC <-chan []FileInfo) int {
	updated := 0
	for committed := range committedC {
		for _, file := range committed {
			metadata := kvdb.FileMetadata{LastIndexed: indexTime, Size: file.Size}
			if err := s.setFileMetadata(file.Path, metadata); err == nil {
				updated++
			}
		}
		s.setRequestStatus(requestID, getProgressPercentage(updated, total, ProgressStatusStep2, ProgressStatusComplete-1))
	}
	return updated
}

func (s *Service) setFileMetadata(path string, metadata kvdb.FileMetadata) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		s.logger.Error("failed to marshal metadata", "path", path, "err", err.Error())
		return fmt.Errorf("failed to marshal metadata for %s: %w", path, err)
	}

	if err := s.metadataStore.Set(kvdb.FilesBucket, path, string(data)); err != nil {
		s.logger.Error("failed to set file metadata", "path", path, "err", err.Error())
		return err
	}

	return nil
}

func (s *Service) getFileMetadata(path string) (*kvdb.FileMetadata, error) {
	value, err := s.metadataStore.Get(kvdb.FilesBucket, path)
	if err != nil {
		return nil, err
	}

	var metadata kvdb.FileMetadata
	if err := json.Unmarshal([]byte(value), &metadata); err != nil {
		s.logger.Error("failed to unmarshal metadata", "path", path, "err", err.Error())
		return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", path, err)
	}

	return &metadata, nil
}

// getDeletedFiles lists indexed files under rootPath that no longer exist.
func (s *Service) getDeletedFiles(rootPath string) ([]string, error) {
	paths, err := s.metadataStore.GetAllKeys(kvdb.FilesBucket)
	if err != nil {
		s.logger.Error("failed to list indexed files", "err", err.Error())
		return nil, fmt.Errorf("failed to list indexed files: %w", err)
	}

	var deleted []string
	for _, path := range paths {
		if path != rootPath && !strings.HasPrefix(path, rootPath+string(filepath.Separator)) {
			continue
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			deleted = append(deleted, path)
		}
	}

	return deleted, nil
}

func (s *Service) setRequestStatus(requestID string, status int) {
	if err := s.metadataStore.Set(kvdb.RequestsBucket, requestID, strconv.Itoa(status)); err != nil {
		s.logger.Error("failed to update request status", "request_id", requestID, "progress", status, "err", err.Error())
	}
}

func getProgressPercentage(done int, total int, initial int, final int) int {
	if done == 0 || total == 0 {
		return initial
	}

	if done >= total {
		return final
	}

	progress := float64(done) / float64(total)
	return int(float64(initial) + progress*float64(final-initial))
}
