package session

import (
	"fmt"

	"github.com/local/docsplit/internal/engine"
)

func (s *Session) pageCountLocked() (int, error) {
	if s.doc == nil {
		return 0, engine.ErrNoDocumentOpen
	}
	return s.doc.info.PageCount, nil
}

// Toggle flips page in the selection and reports whether it is now selected.
func (s *Session) Toggle(page int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.pageCountLocked()
	if err != nil {
		return false, err
	}
	if page < 0 || page >= n {
		return false, fmt.Errorf("%w: %d of %d", engine.ErrPageOutOfRange, page, n)
	}
	return s.selection.Toggle(page), nil
}

// SetSelection replaces the selection. Either every page is valid or nothing changes.
func (s *Session) SetSelection(pages []int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.pageCountLocked()
	if err != nil {
		return nil, err
	}
	for _, p := range pages {
		if p < 0 || p >= n {
			return nil, fmt.Errorf("%w: %d of %d", engine.ErrPageOutOfRange, p, n)
		}
	}
	s.selection.Replace(pages)
	return s.selection.Ordered(), nil
}

// SelectAll selects every page of the open document.
func (s *Session) SelectAll() ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.pageCountLocked()
	if err != nil {
		return nil, err
	}
	s.selection.All(n)
	return s.selection.Ordered(), nil
}

// ClearSelection empties the selection.
func (s *Session) ClearSelection() {
	s.selection.Clear()
}

// Selection returns the selected pages in ascending order.
func (s *Session) Selection() []int {
	return s.selection.Ordered()
}
