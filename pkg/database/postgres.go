package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"board-collab-backend/pkg/models"
	"board-collab-backend/pkg/position"

	"github.com/lib/pq"
)

// PostgresDatabase PostgreSQL数据库实现
type PostgresDatabase struct {
	db *sql.DB
}

// NewPostgresDatabase 创建PostgreSQL数据库实例
func NewPostgresDatabase(dsn string) *PostgresDatabase {
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		panic(fmt.Sprintf("Failed to open PostgreSQL connection: %v", err))
	}

	// 设置连接池参数
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err = db.Ping(); err != nil {
		db.Close()
		panic(fmt.Sprintf("Failed to ping PostgreSQL: %v", err))
	}

	fmt.Printf("✅ PostgreSQL connection established\n")
	return &PostgresDatabase{db: db}
}

// ==== Users ====

// CreateUser 创建用户
func (db *PostgresDatabase) CreateUser(user *models.User) error {
	query := `
        INSERT INTO users (email, password_hash, name, avatar, is_admin, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
        RETURNING id, created_at, updated_at
    `
	err := db.db.QueryRow(query, user.Email, user.Password, user.Name, user.Avatar, user.IsAdmin).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail 根据邮箱获取用户
func (db *PostgresDatabase) GetUserByEmail(email string) (*models.User, error) {
	query := `
        SELECT id, email, COALESCE(name,''), COALESCE(avatar,''), COALESCE(password_hash,''),
               COALESCE(is_admin,false), created_at, updated_at
        FROM users
        WHERE email = $1
    `
	var u models.User
	err := db.db.QueryRow(query, email).Scan(
		&u.ID, &u.Email, &u.Name, &u.Avatar, &u.Password, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &u, nil
}

// GetUserByID 根据ID获取用户
func (db *PostgresDatabase) GetUserByID(id string) (*models.User, error) {
	query := `
        SELECT id, email, COALESCE(name,''), COALESCE(avatar,''), COALESCE(is_admin,false),
               created_at, updated_at
        FROM users
        WHERE id = $1
    `
	var u models.User
	err := db.db.QueryRow(query, id).Scan(
		&u.ID, &u.Email, &u.Name, &u.Avatar, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// UpdateUser 更新用户
func (db *PostgresDatabase) UpdateUser(user *models.User) error {
	if user.ID == "" {
		return fmt.Errorf("user ID is required for update")
	}
	query := `
        UPDATE users
        SET name = $1, avatar = $2, updated_at = NOW()
        WHERE id = $3
    `
	_, err := db.db.Exec(query, user.Name, user.Avatar, user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// ==== Workspaces ====

// CreateWorkspace 创建工作区，同一事务内写入 owner 成员关系
func (db *PostgresDatabase) CreateWorkspace(ws *models.Workspace) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO workspaces (name, description, avatar, owner_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, NOW(), NOW())
        RETURNING id, created_at, updated_at
    `
	err = tx.QueryRow(query, ws.Name, ws.Description, ws.Avatar, ws.OwnerID).
		Scan(&ws.ID, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	_, err = tx.Exec(`
        INSERT INTO workspace_members (workspace_id, user_id, role, status, created_at)
        VALUES ($1, $2, $3, $4, NOW())
    `, ws.ID, ws.OwnerID, models.WorkspaceRoleOwner, models.MemberStatusAccepted)
	if err != nil {
		return fmt.Errorf("failed to create owner membership: %w", err)
	}

	return tx.Commit()
}

// GetWorkspace 获取工作区
func (db *PostgresDatabase) GetWorkspace(id string) (*models.Workspace, error) {
	query := `
        SELECT id, name, COALESCE(description,''), COALESCE(avatar,''), owner_id, created_at, updated_at
        FROM workspaces
        WHERE id = $1
    `
	var ws models.Workspace
	err := db.db.QueryRow(query, id).Scan(
		&ws.ID, &ws.Name, &ws.Description, &ws.Avatar, &ws.OwnerID, &ws.CreatedAt, &ws.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return &ws, nil
}

// ListUserWorkspaces 列出用户已接受成员关系的工作区
func (db *PostgresDatabase) ListUserWorkspaces(userID string) ([]models.Workspace, error) {
	query := `
        SELECT w.id, w.name, COALESCE(w.description,''), COALESCE(w.avatar,''), w.owner_id,
               w.created_at, w.updated_at
        FROM workspaces w
        JOIN workspace_members m ON m.workspace_id = w.id
        WHERE m.user_id = $1 AND m.status = 'accepted'
        ORDER BY w.created_at
    `
	rows, err := db.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var out []models.Workspace
	for rows.Next() {
		var ws models.Workspace
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.Description, &ws.Avatar, &ws.OwnerID,
			&ws.CreatedAt, &ws.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

// GetWorkspaceMembership 获取工作区成员关系
func (db *PostgresDatabase) GetWorkspaceMembership(userID, workspaceID string) (*models.WorkspaceMembership, error) {
	query := `
        SELECT id, workspace_id, user_id, role, status, created_at
        FROM workspace_members
        WHERE user_id = $1 AND workspace_id = $2
    `
	var m models.WorkspaceMembership
	err := db.db.QueryRow(query, userID, workspaceID).Scan(
		&m.ID, &m.WorkspaceID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get workspace membership: %w", err)
	}
	return &m, nil
}

// UpsertWorkspaceMembership 创建或更新工作区成员关系
func (db *PostgresDatabase) UpsertWorkspaceMembership(m *models.WorkspaceMembership) error {
	query := `
        INSERT INTO workspace_members (workspace_id, user_id, role, status, created_at)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (workspace_id, user_id)
        DO UPDATE SET role = EXCLUDED.role, status = EXCLUDED.status
        RETURNING id, created_at
    `
	err := db.db.QueryRow(query, m.WorkspaceID, m.UserID, m.Role, m.Status).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert workspace membership: %w", err)
	}
	return nil
}

// ListWorkspaceMembers 列出工作区成员
func (db *PostgresDatabase) ListWorkspaceMembers(workspaceID string) ([]models.WorkspaceMembership, error) {
	query := `
        SELECT id, workspace_id, user_id, role, status, created_at
        FROM workspace_members
        WHERE workspace_id = $1
        ORDER BY created_at
    `
	rows, err := db.db.Query(query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace members: %w", err)
	}
	defer rows.Close()

	var out []models.WorkspaceMembership
	for rows.Next() {
		var m models.WorkspaceMembership
		if err := rows.Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workspace member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ==== Boards ====

// CreateBoard 创建看板，同一事务内写入 owner 成员关系
func (db *PostgresDatabase) CreateBoard(board *models.Board, ownerID string) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO boards (workspace_id, name, description, invite_link_token, created_at, updated_at)
        VALUES ($1, $2, $3, NULLIF($4,''), NOW(), NOW())
        RETURNING id, created_at, updated_at
    `
	err = tx.QueryRow(query, board.WorkspaceID, board.Name, board.Description, board.InviteLinkToken).
		Scan(&board.ID, &board.CreatedAt, &board.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create board: %w", err)
	}

	_, err = tx.Exec(`
        INSERT INTO board_members (board_id, user_id, role, permissions, created_at)
        VALUES ($1, $2, $3, $4, NOW())
    `, board.ID, ownerID, models.BoardRoleOwner, pq.Array([]string{}))
	if err != nil {
		return fmt.Errorf("failed to create owner membership: %w", err)
	}

	return tx.Commit()
}

// GetBoard 获取看板
func (db *PostgresDatabase) GetBoard(id string) (*models.Board, error) {
	query := `
        SELECT id, workspace_id, name, COALESCE(description,''), COALESCE(invite_link_token,''),
               created_at, updated_at
        FROM boards
        WHERE id = $1
    `
	var b models.Board
	err := db.db.QueryRow(query, id).Scan(
		&b.ID, &b.WorkspaceID, &b.Name, &b.Description, &b.InviteLinkToken, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get board: %w", err)
	}
	return &b, nil
}

// GetBoardByInviteLinkToken 根据永久邀请链接 token 查找看板
func (db *PostgresDatabase) GetBoardByInviteLinkToken(token string) (*models.Board, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	query := `
        SELECT id, workspace_id, name, COALESCE(description,''), COALESCE(invite_link_token,''),
               created_at, updated_at
        FROM boards
        WHERE invite_link_token = $1
    `
	var b models.Board
	err := db.db.QueryRow(query, token).Scan(
		&b.ID, &b.WorkspaceID, &b.Name, &b.Description, &b.InviteLinkToken, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get board by invite link: %w", err)
	}
	return &b, nil
}

// SetBoardInviteLinkToken 更新永久邀请链接 token（空字符串表示撤销）
func (db *PostgresDatabase) SetBoardInviteLinkToken(boardID, token string) error {
	result, err := db.db.Exec(`
        UPDATE boards SET invite_link_token = NULLIF($1,''), updated_at = NOW() WHERE id = $2
    `, token, boardID)
	if err != nil {
		return fmt.Errorf("failed to set invite link token: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWorkspaceBoards 列出工作区下的看板
func (db *PostgresDatabase) ListWorkspaceBoards(workspaceID string) ([]models.Board, error) {
	query := `
        SELECT id, workspace_id, name, COALESCE(description,''), COALESCE(invite_link_token,''),
               created_at, updated_at
        FROM boards
        WHERE workspace_id = $1
        ORDER BY created_at
    `
	rows, err := db.db.Query(query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}
	defer rows.Close()

	var out []models.Board
	for rows.Next() {
		var b models.Board
		if err := rows.Scan(&b.ID, &b.WorkspaceID, &b.Name, &b.Description, &b.InviteLinkToken,
			&b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan board: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBoardMembership 获取看板成员关系
func (db *PostgresDatabase) GetBoardMembership(userID, boardID string) (*models.BoardMembership, error) {
	query := `
        SELECT id, board_id, user_id, role, permissions, created_at
        FROM board_members
        WHERE user_id = $1 AND board_id = $2
    `
	var m models.BoardMembership
	var perms []string
	err := db.db.QueryRow(query, userID, boardID).Scan(
		&m.ID, &m.BoardID, &m.UserID, &m.Role, pq.Array(&perms), &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get board membership: %w", err)
	}
	m.Permissions = toBoardPermissions(perms)
	return &m, nil
}

// UpsertBoardMembership 创建或更新看板成员关系
func (db *PostgresDatabase) UpsertBoardMembership(m *models.BoardMembership) error {
	query := `
        INSERT INTO board_members (board_id, user_id, role, permissions, created_at)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (board_id, user_id)
        DO UPDATE SET role = EXCLUDED.role, permissions = EXCLUDED.permissions
        RETURNING id, created_at
    `
	err := db.db.QueryRow(query, m.BoardID, m.UserID, m.Role, pq.Array(fromBoardPermissions(m.Permissions))).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert board membership: %w", err)
	}
	return nil
}

// ListBoardMembers 列出看板成员
func (db *PostgresDatabase) ListBoardMembers(boardID string) ([]models.BoardMembership, error) {
	query := `
        SELECT id, board_id, user_id, role, permissions, created_at
        FROM board_members
        WHERE board_id = $1
        ORDER BY created_at
    `
	rows, err := db.db.Query(query, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list board members: %w", err)
	}
	defer rows.Close()

	var out []models.BoardMembership
	for rows.Next() {
		var m models.BoardMembership
		var perms []string
		if err := rows.Scan(&m.ID, &m.BoardID, &m.UserID, &m.Role, pq.Array(&perms), &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan board member: %w", err)
		}
		m.Permissions = toBoardPermissions(perms)
		out = append(out, m)
	}
	return out, rows.Err()
}

func toBoardPermissions(perms []string) []models.BoardPermission {
	out := make([]models.BoardPermission, 0, len(perms))
	for _, p := range perms {
		out = append(out, models.BoardPermission(p))
	}
	return out
}

func fromBoardPermissions(perms []models.BoardPermission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}
	return out
}

// ==== Lists ====

// GetList 获取列表
func (db *PostgresDatabase) GetList(id string) (*models.List, error) {
	query := `
        SELECT id, board_id, name, position, created_at, updated_at
        FROM lists
        WHERE id = $1
    `
	var l models.List
	err := db.db.QueryRow(query, id).Scan(
		&l.ID, &l.BoardID, &l.Name, &l.Position, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get list: %w", err)
	}
	return &l, nil
}

// ListListsByBoard 按 position 升序列出看板下的列表
func (db *PostgresDatabase) ListListsByBoard(boardID string) ([]models.List, error) {
	query := `
        SELECT id, board_id, name, position, created_at, updated_at
        FROM lists
        WHERE board_id = $1
        ORDER BY position
    `
	rows, err := db.db.Query(query, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lists: %w", err)
	}
	defer rows.Close()

	var out []models.List
	for rows.Next() {
		var l models.List
		if err := rows.Scan(&l.ID, &l.BoardID, &l.Name, &l.Position, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan list: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// lockSiblingPositions 在事务内按 position 升序锁定并读取一个父作用域的
// 全部兄弟行。FOR UPDATE 保证同一父作用域上的并发重排互斥，不同父作用域
// 互不影响。
func lockSiblingPositions(tx *sql.Tx, table, parentColumn, parentID string) (ids []string, positions []int64, err error) {
	query := fmt.Sprintf(`
        SELECT id, position FROM %s
        WHERE %s = $1
        ORDER BY position
        FOR UPDATE
    `, table, parentColumn)
	rows, err := tx.Query(query, parentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock siblings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var pos int64
		if err := rows.Scan(&id, &pos); err != nil {
			return nil, nil, fmt.Errorf("failed to scan sibling: %w", err)
		}
		ids = append(ids, id)
		positions = append(positions, pos)
	}
	return ids, positions, rows.Err()
}

// CreateList 创建列表并追加到看板末尾
func (db *PostgresDatabase) CreateList(list *models.List, eng *position.Engine) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM boards WHERE id = $1)`, list.BoardID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check board: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	_, positions, err := lockSiblingPositions(tx, "lists", "board_id", list.BoardID)
	if err != nil {
		return err
	}
	list.Position = eng.Append(positions)

	err = tx.QueryRow(`
        INSERT INTO lists (board_id, name, position, created_at, updated_at)
        VALUES ($1, $2, $3, NOW(), NOW())
        RETURNING id, created_at, updated_at
    `, list.BoardID, list.Name, list.Position).Scan(&list.ID, &list.CreatedAt, &list.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create list: %w", err)
	}

	return tx.Commit()
}

// ReorderList 将列表移动到看板内的目标下标
func (db *PostgresDatabase) ReorderList(listID string, targetIndex int, eng *position.Engine) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var boardID string
	err = tx.QueryRow(`SELECT board_id FROM lists WHERE id = $1`, listID).Scan(&boardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get list: %w", err)
	}

	ids, positions, err := lockSiblingPositions(tx, "lists", "board_id", boardID)
	if err != nil {
		return err
	}

	otherIDs := make([]string, 0, len(ids))
	otherPositions := make([]int64, 0, len(positions))
	for i, id := range ids {
		if id != listID {
			otherIDs = append(otherIDs, id)
			otherPositions = append(otherPositions, positions[i])
		}
	}

	placement := eng.PlaceAt(otherPositions, targetIndex)
	if placement.Rebalanced != nil {
		for i, id := range otherIDs {
			if _, err := tx.Exec(`UPDATE lists SET position = $1, updated_at = NOW() WHERE id = $2`,
				placement.Rebalanced[i], id); err != nil {
				return fmt.Errorf("failed to rebalance list positions: %w", err)
			}
		}
	}
	if _, err := tx.Exec(`UPDATE lists SET position = $1, updated_at = NOW() WHERE id = $2`,
		placement.Position, listID); err != nil {
		return fmt.Errorf("failed to reorder list: %w", err)
	}

	return tx.Commit()
}

// ==== Cards ====

// GetCard 获取卡片
func (db *PostgresDatabase) GetCard(id string) (*models.Card, error) {
	query := `
        SELECT id, list_id, board_id, title, COALESCE(description,''), position, created_at, updated_at
        FROM cards
        WHERE id = $1
    `
	var c models.Card
	err := db.db.QueryRow(query, id).Scan(
		&c.ID, &c.ListID, &c.BoardID, &c.Title, &c.Description, &c.Position, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return &c, nil
}

// ListCardsByList 按 position 升序列出列表下的卡片
func (db *PostgresDatabase) ListCardsByList(listID string) ([]models.Card, error) {
	query := `
        SELECT id, list_id, board_id, title, COALESCE(description,''), position, created_at, updated_at
        FROM cards
        WHERE list_id = $1
        ORDER BY position
    `
	rows, err := db.db.Query(query, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var out []models.Card
	for rows.Next() {
		var c models.Card
		if err := rows.Scan(&c.ID, &c.ListID, &c.BoardID, &c.Title, &c.Description, &c.Position,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCard 创建卡片并追加到列表末尾，board_id 跟随所属列表
func (db *PostgresDatabase) CreateCard(card *models.Card, eng *position.Engine) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRow(`SELECT board_id FROM lists WHERE id = $1`, card.ListID).Scan(&card.BoardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get list: %w", err)
	}

	_, positions, err := lockSiblingPositions(tx, "cards", "list_id", card.ListID)
	if err != nil {
		return err
	}
	card.Position = eng.Append(positions)

	err = tx.QueryRow(`
        INSERT INTO cards (list_id, board_id, title, description, position, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
        RETURNING id, created_at, updated_at
    `, card.ListID, card.BoardID, card.Title, card.Description, card.Position).
		Scan(&card.ID, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}

	return tx.Commit()
}

// MoveCard 在列表内或跨列表移动卡片。位置只依据目标列表的兄弟卡片计算，
// list_id 与 board_id 在同一条 UPDATE 中更新，保证 card.board 始终等于
// card.list.board。
func (db *PostgresDatabase) MoveCard(cardID, targetListID string, targetIndex int, eng *position.Engine) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM cards WHERE id = $1)`, cardID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check card: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	var targetBoardID string
	err = tx.QueryRow(`SELECT board_id FROM lists WHERE id = $1`, targetListID).Scan(&targetBoardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get target list: %w", err)
	}

	ids, positions, err := lockSiblingPositions(tx, "cards", "list_id", targetListID)
	if err != nil {
		return err
	}

	otherIDs := make([]string, 0, len(ids))
	otherPositions := make([]int64, 0, len(positions))
	for i, id := range ids {
		if id != cardID {
			otherIDs = append(otherIDs, id)
			otherPositions = append(otherPositions, positions[i])
		}
	}

	placement := eng.PlaceAt(otherPositions, targetIndex)
	if placement.Rebalanced != nil {
		for i, id := range otherIDs {
			if _, err := tx.Exec(`UPDATE cards SET position = $1, updated_at = NOW() WHERE id = $2`,
				placement.Rebalanced[i], id); err != nil {
				return fmt.Errorf("failed to rebalance card positions: %w", err)
			}
		}
	}
	if _, err := tx.Exec(`
        UPDATE cards SET list_id = $1, board_id = $2, position = $3, updated_at = NOW()
        WHERE id = $4
    `, targetListID, targetBoardID, placement.Position, cardID); err != nil {
		return fmt.Errorf("failed to move card: %w", err)
	}

	return tx.Commit()
}

// ==== Invitations ====

// CreateInvitation 创建邀请审计记录
func (db *PostgresDatabase) CreateInvitation(inv *models.BoardInvitation) error {
	query := `
        INSERT INTO board_invitations
            (board_id, inviter_id, invited_email, invited_user_id, token, consumed, expires_at, created_at, updated_at)
        VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), $5, false, $6, NOW(), NOW())
        RETURNING id, created_at, updated_at
    `
	err := db.db.QueryRow(query, inv.BoardID, inv.InviterID, inv.InvitedEmail, inv.InvitedUserID,
		inv.Token, inv.ExpiresAt).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// GetInvitationByToken 根据 token 获取邀请记录
func (db *PostgresDatabase) GetInvitationByToken(token string) (*models.BoardInvitation, error) {
	query := `
        SELECT id, board_id, inviter_id, COALESCE(invited_email,''), COALESCE(invited_user_id::text,''),
               token, consumed, consumed_by, expires_at, created_at, updated_at
        FROM board_invitations
        WHERE token = $1
    `
	var inv models.BoardInvitation
	err := db.db.QueryRow(query, token).Scan(
		&inv.ID, &inv.BoardID, &inv.InviterID, &inv.InvitedEmail, &inv.InvitedUserID,
		&inv.Token, &inv.Consumed, &inv.ConsumedBy, &inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return &inv, nil
}

// ConsumeInvitation 在一个事务内完成消费与入成员两步写入。
// WHERE consumed = false 保证并发 accept 只有一个成功；成员写入失败时
// 整个事务回滚，token 不会被白白烧掉。
func (db *PostgresDatabase) ConsumeInvitation(id string, membership *models.BoardMembership) (*models.BoardMembership, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
        UPDATE board_invitations
        SET consumed = true, consumed_by = $1, updated_at = NOW()
        WHERE id = $2 AND consumed = false
    `, membership.UserID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to mark invitation consumed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		// 区分记录不存在与已被消费
		var exists bool
		if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM board_invitations WHERE id = $1)`, id).
			Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check invitation: %w", err)
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrAlreadyConsumed
	}

	// 已是成员则原样保留，仅消费 token
	var existing models.BoardMembership
	var perms []string
	err = tx.QueryRow(`
        SELECT id, board_id, user_id, role, permissions, created_at
        FROM board_members
        WHERE user_id = $1 AND board_id = $2
    `, membership.UserID, membership.BoardID).Scan(
		&existing.ID, &existing.BoardID, &existing.UserID, &existing.Role, pq.Array(&perms), &existing.CreatedAt,
	)
	switch {
	case err == nil:
		existing.Permissions = toBoardPermissions(perms)
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return &existing, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to the insert
	default:
		return nil, fmt.Errorf("failed to get board membership: %w", err)
	}

	err = tx.QueryRow(`
        INSERT INTO board_members (board_id, user_id, role, permissions, created_at)
        VALUES ($1, $2, $3, $4, NOW())
        RETURNING id, created_at
    `, membership.BoardID, membership.UserID, membership.Role, pq.Array(fromBoardPermissions(membership.Permissions))).
		Scan(&membership.ID, &membership.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert board membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return membership, nil
}

// ListBoardInvitations 列出看板的邀请记录
func (db *PostgresDatabase) ListBoardInvitations(boardID string) ([]models.BoardInvitation, error) {
	query := `
        SELECT id, board_id, inviter_id, COALESCE(invited_email,''), COALESCE(invited_user_id::text,''),
               token, consumed, consumed_by, expires_at, created_at, updated_at
        FROM board_invitations
        WHERE board_id = $1
        ORDER BY created_at DESC
    `
	rows, err := db.db.Query(query, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var out []models.BoardInvitation
	for rows.Next() {
		var inv models.BoardInvitation
		if err := rows.Scan(&inv.ID, &inv.BoardID, &inv.InviterID, &inv.InvitedEmail, &inv.InvitedUserID,
			&inv.Token, &inv.Consumed, &inv.ConsumedBy, &inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// HealthCheck 健康检查
func (db *PostgresDatabase) HealthCheck() error {
	return db.db.Ping()
}

// Close 关闭连接
func (db *PostgresDatabase) Close() error {
	return db.db.Close()
}
