// Package audit keeps a git-backed trail of the annotation corpus. Every
// recorded step commits the full snapshot, so the analysis history can be
// reviewed commit by commit and any earlier state recovered.
package audit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"skein/internal/corpus"
)

const snapshotFile = "corpus.json"

// CommitInfo describes one trail entry.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service owns the trail repository.
type Service struct {
	mu   sync.Mutex
	path string
}

// New opens or initializes the trail repository under baseDir.
func New(baseDir string) (*Service, error) {
	path := filepath.Join(baseDir, "trail")
	s := &Service{path: path}

	if _, err := os.Stat(path); err == nil {
		if _, err := git.PlainOpen(path); err != nil {
			return nil, fmt.Errorf("open trail repo: %w", err)
		}
		return s, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat trail path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create trail dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init trail repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	if err := s.writeSnapshot(corpus.Snapshot{}); err != nil {
		return nil, err
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return nil, fmt.Errorf("git add baseline: %w", err)
	}
	hash, err := worktree.Commit("Initialize audit trail", &git.CommitOptions{
		Author: signature("system"),
	})
	if err != nil {
		return nil, fmt.Errorf("commit baseline: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return nil, fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return s, nil
}

// Record commits the snapshot with the given message.
func (s *Service) Record(snap corpus.Snapshot, actor, message string) (CommitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.path)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open trail repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	if err := s.writeSnapshot(snap); err != nil {
		return CommitInfo{}, err
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return CommitInfo{}, fmt.Errorf("git add snapshot: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature(actor),
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit snapshot: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History returns trail entries newest first, up to limit.
func (s *Service) History(limit int) ([]CommitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.path)
	if err != nil {
		return nil, fmt.Errorf("open trail repo: %w", err)
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

// SnapshotAt reads the corpus as of a trail commit. Abbreviated hashes are
// resolved the way git does.
func (s *Service) SnapshotAt(hash string) (corpus.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.path)
	if err != nil {
		return corpus.Snapshot{}, fmt.Errorf("open trail repo: %w", err)
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return corpus.Snapshot{}, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return corpus.Snapshot{}, fmt.Errorf("read commit %s: %w", hash, err)
	}

	file, err := commitObj.File(snapshotFile)
	if err != nil {
		return corpus.Snapshot{}, fmt.Errorf("load %s from commit: %w", snapshotFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return corpus.Snapshot{}, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	body, err := io.ReadAll(reader)
	if err != nil {
		return corpus.Snapshot{}, fmt.Errorf("read snapshot bytes: %w", err)
	}
	return corpus.DecodeSnapshot(body)
}

func (s *Service) writeSnapshot(snap corpus.Snapshot) error {
	payload, err := snap.Encode()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.path, snapshotFile), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}
	return nil
}

func signature(actor string) *object.Signature {
	if actor == "" {
		actor = "researcher"
	}
	return &object.Signature{
		Name:  actor,
		Email: fmt.Sprintf("%s@local.skein.dev", sanitizeEmail(actor)),
		When:  time.Now(),
	}
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
		return "user"
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
