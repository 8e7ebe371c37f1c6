// Package access is the single source of truth for authorization decisions.
// Every mutating code path resolves the principal's effective role and
// permissions here instead of re-implementing membership checks per route.
package access

import (
	"errors"
	"fmt"

	"board-collab-backend/pkg/database"
	"board-collab-backend/pkg/models"
)

// ResourceKind identifies which level of the workspace tree a reference
// points at.
type ResourceKind string

const (
	KindWorkspace ResourceKind = "workspace"
	KindBoard     ResourceKind = "board"
	KindList      ResourceKind = "list"
	KindCard      ResourceKind = "card"
)

// ResourceRef references any entity in the workspace/board/list/card tree.
type ResourceRef struct {
	Kind ResourceKind
	ID   string
}

// Chain is a resolved ownership chain. ListID and CardID are empty when the
// reference enters the tree above that level; BoardID is empty only for
// workspace references.
type Chain struct {
	CardID      string
	ListID      string
	BoardID     string
	WorkspaceID string
}

// ChainStore is the read surface the lookup needs from storage.
type ChainStore interface {
	GetCard(id string) (*models.Card, error)
	GetList(id string) (*models.List, error)
	GetBoard(id string) (*models.Board, error)
	GetWorkspace(id string) (*models.Workspace, error)
}

// Lookup resolves ownership chains (card→list→board→workspace). Pure read,
// no side effects; any broken link fails closed with ErrResourceNotFound.
type Lookup struct {
	store ChainStore
}

// NewLookup 创建资源链解析器
func NewLookup(store ChainStore) *Lookup {
	return &Lookup{store: store}
}

// ResolveChain walks ref up to its owning board and workspace.
func (l *Lookup) ResolveChain(ref ResourceRef) (*Chain, error) {
	chain := &Chain{}

	switch ref.Kind {
	case KindCard:
		card, err := l.store.GetCard(ref.ID)
		if err != nil {
			return nil, chainErr("card", err)
		}
		chain.CardID = card.ID
		chain.ListID = card.ListID
		chain.BoardID = card.BoardID
	case KindList:
		list, err := l.store.GetList(ref.ID)
		if err != nil {
			return nil, chainErr("list", err)
		}
		chain.ListID = list.ID
		chain.BoardID = list.BoardID
	case KindBoard:
		chain.BoardID = ref.ID
	case KindWorkspace:
		ws, err := l.store.GetWorkspace(ref.ID)
		if err != nil {
			return nil, chainErr("workspace", err)
		}
		chain.WorkspaceID = ws.ID
		return chain, nil
	default:
		return nil, fmt.Errorf("%w: unknown resource kind %q", ErrResourceNotFound, ref.Kind)
	}

	board, err := l.store.GetBoard(chain.BoardID)
	if err != nil {
		return nil, chainErr("board", err)
	}
	chain.BoardID = board.ID
	chain.WorkspaceID = board.WorkspaceID

	if _, err := l.store.GetWorkspace(chain.WorkspaceID); err != nil {
		return nil, chainErr("workspace", err)
	}
	return chain, nil
}

// chainErr fails closed: a missing link is always ErrResourceNotFound,
// storage failures keep their cause.
func chainErr(link string, err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, link)
	}
	return fmt.Errorf("resolve %s: %w", link, err)
}
