// Package manifestrepo keeps every saved revision of a shipment's discharge
// manifest in a per-shipment git repository. Each save commits manifest.json
// to main; submissions are tagged so the exact submitted revision can always
// be recovered.
package manifestrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"cargoops/api/internal/store"
)

// Snapshot is the manifest state captured by one commit.
type Snapshot struct {
	ManifestNumber string            `json:"manifestNumber"`
	Status         string            `json:"status"`
	Cargo          []store.CargoItem `json:"cargo"`
}

// CommitInfo describes one manifest revision.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureRepo initializes the shipment's manifest repository with a baseline
// commit. Idempotent when the repository already exists.
func (s *Service) EnsureRepo(shipmentID string, initial Snapshot, author string) error {
	lock := s.shipmentLock(shipmentID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(shipmentID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	hash, err := commitSnapshotFile(repo, path, initial, author, "Open manifest baseline")
	if err != nil {
		return err
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// CommitSnapshot records a new manifest revision on main.
func (s *Service) CommitSnapshot(shipmentID string, snapshot Snapshot, author, message string) (CommitInfo, error) {
	lock := s.shipmentLock(shipmentID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(shipmentID)
	repo, err := git.PlainOpen(path)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	hash, err := commitSnapshotFile(repo, path, snapshot, author, message)
	if err != nil {
		return CommitInfo{}, err
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History lists manifest revisions, newest first.
func (s *Service) History(shipmentID string, limit int) ([]CommitInfo, error) {
	lock := s.shipmentLock(shipmentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(shipmentID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// GetSnapshotByHash reads the manifest state at a specific revision. Short
// hashes are resolved.
func (s *Service) GetSnapshotByHash(shipmentID, hash string) (Snapshot, error) {
	lock := s.shipmentLock(shipmentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(shipmentID))
	if err != nil {
		return Snapshot{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return Snapshot{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readSnapshotFromCommit(commitObj)
}

// TagSubmission tags a revision as submitted. Re-tagging the same name is
// not an error.
func (s *Service) TagSubmission(shipmentID, hash, name string) error {
	lock := s.shipmentLock(shipmentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(shipmentID))
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return err
	}

	_, err = repo.CreateTag(name, resolvedHash, &git.CreateTagOptions{
		Tagger: &object.Signature{
			Name:  "CargoOps",
			Email: "cargoops@localhost",
			When:  time.Now(),
		},
		Message: name,
	})
	if err != nil && !errors.Is(err, git.ErrTagExists) {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// DiffFields lists what changed between two manifest snapshots.
func DiffFields(from, to Snapshot) []map[string]string {
	result := make([]map[string]string, 0)
	if from.ManifestNumber != to.ManifestNumber {
		result = append(result, map[string]string{"field": "manifestNumber", "before": from.ManifestNumber, "after": to.ManifestNumber})
	}
	if from.Status != to.Status {
		result = append(result, map[string]string{"field": "status", "before": from.Status, "after": to.Status})
	}
	if cargoUnits(from.Cargo) != cargoUnits(to.Cargo) || len(from.Cargo) != len(to.Cargo) {
		result = append(result, map[string]string{
			"field":  "cargo",
			"before": fmt.Sprintf("%d lines / %d units", len(from.Cargo), cargoUnits(from.Cargo)),
			"after":  fmt.Sprintf("%d lines / %d units", len(to.Cargo), cargoUnits(to.Cargo)),
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i]["field"] < result[j]["field"]
	})
	return result
}

func cargoUnits(cargo []store.CargoItem) int {
	total := 0
	for _, item := range cargo {
		total += item.Units
	}
	return total
}

func (s *Service) repoPath(shipmentID string) string {
	return filepath.Join(s.baseDir, shipmentID)
}

func (s *Service) shipmentLock(shipmentID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[shipmentID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[shipmentID] = lock
	return lock
}

func commitSnapshotFile(repo *git.Repository, repoRoot string, snapshot Snapshot, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(repoRoot, "manifest.json"), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write manifest.json: %w", err)
	}
	if _, err := worktree.Add("manifest.json"); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add manifest: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.cargoops.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit snapshot: %w", err)
	}
	return hash, nil
}

func readSnapshotFromCommit(commitObj *object.Commit) (Snapshot, error) {
	file, err := commitObj.File("manifest.json")
	if err != nil {
		return Snapshot{}, fmt.Errorf("load manifest.json from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Snapshot{}, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot bytes: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "operator"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
