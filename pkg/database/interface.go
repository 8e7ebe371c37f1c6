package database

import (
	"errors"
	"fmt"

	"board-collab-backend/pkg/models"
	"board-collab-backend/pkg/position"
)

// Sentinel errors shared by all implementations. Callers match with
// errors.Is so the access resolver and invitation broker can map storage
// outcomes to their closed denial sets.
var (
	ErrNotFound        = errors.New("record not found")
	ErrAlreadyConsumed = errors.New("invitation already consumed")
)

// DatabaseInterface 定义数据库访问接口
//
// Position-mutating methods (CreateList, ReorderList, CreateCard, MoveCard)
// serialize their read-then-write against other calls on the same parent
// scope: one board's lists, or one list's cards. Different parents never
// contend.
type DatabaseInterface interface {
	// 用户管理
	CreateUser(user *models.User) error
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	UpdateUser(user *models.User) error

	// Workspaces & memberships
	CreateWorkspace(ws *models.Workspace) error
	GetWorkspace(id string) (*models.Workspace, error)
	ListUserWorkspaces(userID string) ([]models.Workspace, error)
	GetWorkspaceMembership(userID, workspaceID string) (*models.WorkspaceMembership, error)
	UpsertWorkspaceMembership(m *models.WorkspaceMembership) error
	ListWorkspaceMembers(workspaceID string) ([]models.WorkspaceMembership, error)

	// Boards & memberships
	CreateBoard(board *models.Board, ownerID string) error
	GetBoard(id string) (*models.Board, error)
	GetBoardByInviteLinkToken(token string) (*models.Board, error)
	// SetBoardInviteLinkToken replaces the permanent join link token.
	// An empty token revokes the link.
	SetBoardInviteLinkToken(boardID, token string) error
	ListWorkspaceBoards(workspaceID string) ([]models.Board, error)
	GetBoardMembership(userID, boardID string) (*models.BoardMembership, error)
	UpsertBoardMembership(m *models.BoardMembership) error
	ListBoardMembers(boardID string) ([]models.BoardMembership, error)

	// Lists (ordered within a board)
	GetList(id string) (*models.List, error)
	ListListsByBoard(boardID string) ([]models.List, error)
	CreateList(list *models.List, eng *position.Engine) error
	ReorderList(listID string, targetIndex int, eng *position.Engine) error

	// Cards (ordered within a list; board_id denormalized)
	GetCard(id string) (*models.Card, error)
	ListCardsByList(listID string) ([]models.Card, error)
	CreateCard(card *models.Card, eng *position.Engine) error
	// MoveCard repositions a card within its list or moves it to another
	// list. The card's board_id always follows the target list in the
	// same write.
	MoveCard(cardID, targetListID string, targetIndex int, eng *position.Engine) error

	// Invitations (durable audit records)
	CreateInvitation(inv *models.BoardInvitation) error
	GetInvitationByToken(token string) (*models.BoardInvitation, error)
	// ConsumeInvitation atomically spends the single use and grants board
	// membership: the consumed flag flips with check-and-set semantics
	// (exactly one caller wins, later callers get ErrAlreadyConsumed) and
	// the membership write commits in the same transaction or lock scope.
	// Neither write is ever visible without the other. A user who is
	// already on the board keeps their existing membership unchanged.
	ConsumeInvitation(id string, membership *models.BoardMembership) (*models.BoardMembership, error)
	ListBoardInvitations(boardID string) ([]models.BoardInvitation, error)

	// 健康检查
	HealthCheck() error

	// 关闭连接
	Close() error
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	UseLocalDB  bool
	PostgresDSN string
	Debug       bool
}

// NewDatabase 根据配置选择数据库实现
func NewDatabase(config DatabaseConfig) DatabaseInterface {
	if config.PostgresDSN != "" && !config.UseLocalDB {
		fmt.Printf("🗄️  Using PostgreSQL database\n")
		return NewPostgresDatabase(config.PostgresDSN)
	}

	fmt.Printf("🗄️  Using local in-memory database\n")
	return NewLocalDatabase()
}
