package indexer

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/braind/internal/githubtree"
)

// FileStatus is one tree blob with its indexed state.
type FileStatus struct {
	Path    string `json:"path"`
	Size    int    `json:"size"`
	Indexed bool   `json:"indexed"`
}

// FilesPage lists the repository tree at head with per-path indexed state.
type FilesPage struct {
	Repo   string       `json:"repo"`
	Branch string       `json:"branch"`
	Head   string       `json:"head"`
	Files  []FileStatus `json:"files"`
}

// FilesSummary counts a repository's blobs and how many are indexed.
type FilesSummary struct {
	Repo    string `json:"repo"`
	Total   int    `json:"total"`
	Indexed int    `json:"indexed"`
}

// ListFiles returns the repository tree at head with each path's indexed
// state.
func (s *Service) ListFiles(ctx context.Context, ref RepositoryRef) (*FilesPage, error) {
	blobs, branch, head, err := s.listTree(ctx, ref)
	if err != nil {
		return nil, err
	}

	indexed, err := s.store.IndexedPaths(ctx, ref.Owner, ref.Name)
	if err != nil {
		return nil, fmt.Errorf("loading indexed paths: %w", err)
	}

	page := &FilesPage{
		Repo:   ref.String(),
		Branch: branch,
		Head:   head,
		Files:  make([]FileStatus, 0, len(blobs)),
	}
	for _, b := range blobs {
		_, ok := indexed[b.Path]
		page.Files = append(page.Files, FileStatus{Path: b.Path, Size: b.Size, Indexed: ok})
	}
	return page, nil
}

// Summary counts the repository's blobs against its indexed paths. An unknown
// repository yields zero counts rather than an error.
func (s *Service) Summary(ctx context.Context, ref RepositoryRef) (*FilesSummary, error) {
	blobs, _, _, err := s.listTree(ctx, ref)
	if err != nil {
		if githubtree.IsNotFound(err) {
			return &FilesSummary{Repo: ref.String()}, nil
		}
		return nil, err
	}

	indexed, err := s.store.IndexedPaths(ctx, ref.Owner, ref.Name)
	if err != nil {
		return nil, fmt.Errorf("loading indexed paths: %w", err)
	}

	n := 0
	for _, b := range blobs {
		if _, ok := indexed[b.Path]; ok {
			n++
		}
	}
	return &FilesSummary{Repo: ref.String(), Total: len(blobs), Indexed: n}, nil
}

func (s *Service) listTree(ctx context.Context, ref RepositoryRef) ([]githubtree.BlobEntry, string, string, error) {
	token, err := s.creds.TokenFor(ctx, ref.Owner)
	if err != nil {
		return nil, "", "", err
	}
	lister, err := s.newLister(ctx, token)
	if err != nil {
		return nil, "", "", fmt.Errorf("building tree lister: %w", err)
	}
	meta, err := lister.RepoInfo(ctx, ref.Owner, ref.Name)
	if err != nil {
		return nil, "", "", err
	}
	branch, head, err := lister.ResolveHead(ctx, ref.Owner, ref.Name, meta.DefaultBranch)
	if err != nil {
		return nil, "", "", err
	}
	blobs, err := lister.ListBlobs(ctx, ref.Owner, ref.Name, head)
	if err != nil {
		return nil, "", "", err
	}
	return blobs, branch, head, nil
}
