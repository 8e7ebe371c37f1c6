package database

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"board-collab-backend/pkg/models"
	"board-collab-backend/pkg/position"

	"github.com/google/uuid"
)

// LocalDatabase 本地内存数据库实现（开发环境与测试使用）
type LocalDatabase struct {
	mu sync.RWMutex

	users              map[string]*models.User
	workspaces         map[string]*models.Workspace
	wsMembers          map[string]*models.WorkspaceMembership // workspaceID|userID
	boards             map[string]*models.Board
	boardMembers       map[string]*models.BoardMembership // boardID|userID
	lists              map[string]*models.List
	cards              map[string]*models.Card
	invitations        map[string]*models.BoardInvitation
	invitationsByToken map[string]string // token -> invitation id

	// scopeLocks serializes position read-then-write per parent scope
	// ("board:<id>" for lists, "list:<id>" for cards). Scopes never share
	// a lock, so reorders on different parents do not contend.
	scopeLocks  map[string]*sync.Mutex
	scopeLockMu sync.Mutex
}

// NewLocalDatabase 创建本地数据库实例
func NewLocalDatabase() *LocalDatabase {
	return &LocalDatabase{
		users:              make(map[string]*models.User),
		workspaces:         make(map[string]*models.Workspace),
		wsMembers:          make(map[string]*models.WorkspaceMembership),
		boards:             make(map[string]*models.Board),
		boardMembers:       make(map[string]*models.BoardMembership),
		lists:              make(map[string]*models.List),
		cards:              make(map[string]*models.Card),
		invitations:        make(map[string]*models.BoardInvitation),
		invitationsByToken: make(map[string]string),
		scopeLocks:         make(map[string]*sync.Mutex),
	}
}

func (db *LocalDatabase) scopeLock(scope string) *sync.Mutex {
	db.scopeLockMu.Lock()
	defer db.scopeLockMu.Unlock()
	if l, ok := db.scopeLocks[scope]; ok {
		return l
	}
	l := &sync.Mutex{}
	db.scopeLocks[scope] = l
	return l
}

func memberKey(resourceID, userID string) string {
	return resourceID + "|" + userID
}

// ==== Users ====

// CreateUser 创建用户
func (db *LocalDatabase) CreateUser(user *models.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Email == user.Email {
			return fmt.Errorf("user with email %s already exists", user.Email)
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	cp := *user
	db.users[user.ID] = &cp
	return nil
}

// GetUserByEmail 根据邮箱获取用户
func (db *LocalDatabase) GetUserByEmail(email string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, u := range db.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// GetUserByID 根据ID获取用户
func (db *LocalDatabase) GetUserByID(id string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	u, ok := db.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// UpdateUser 更新用户
func (db *LocalDatabase) UpdateUser(user *models.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.users[user.ID]; !ok {
		return ErrNotFound
	}
	user.UpdatedAt = time.Now()
	cp := *user
	db.users[user.ID] = &cp
	return nil
}

// ==== Workspaces ====

// CreateWorkspace 创建工作区，创建者自动成为 owner
func (db *LocalDatabase) CreateWorkspace(ws *models.Workspace) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if ws.ID == "" {
		ws.ID = uuid.New().String()
	}
	ws.CreatedAt = time.Now()
	ws.UpdatedAt = time.Now()

	cp := *ws
	db.workspaces[ws.ID] = &cp

	// creator becomes the accepted owner
	m := &models.WorkspaceMembership{
		ID:          uuid.New().String(),
		WorkspaceID: ws.ID,
		UserID:      ws.OwnerID,
		Role:        models.WorkspaceRoleOwner,
		Status:      models.MemberStatusAccepted,
		CreatedAt:   time.Now(),
	}
	db.wsMembers[memberKey(ws.ID, ws.OwnerID)] = m
	return nil
}

// GetWorkspace 获取工作区
func (db *LocalDatabase) GetWorkspace(id string) (*models.Workspace, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	ws, ok := db.workspaces[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ws
	return &cp, nil
}

// ListUserWorkspaces 列出用户所属的工作区
func (db *LocalDatabase) ListUserWorkspaces(userID string) ([]models.Workspace, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []models.Workspace
	for _, m := range db.wsMembers {
		if m.UserID == userID && m.Status == models.MemberStatusAccepted {
			if ws, ok := db.workspaces[m.WorkspaceID]; ok {
				out = append(out, *ws)
			}
		}
	}
	return out, nil
}

// GetWorkspaceMembership 获取工作区成员关系
func (db *LocalDatabase) GetWorkspaceMembership(userID, workspaceID string) (*models.WorkspaceMembership, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	m, ok := db.wsMembers[memberKey(workspaceID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// UpsertWorkspaceMembership 创建或更新工作区成员关系
func (db *LocalDatabase) UpsertWorkspaceMembership(m *models.WorkspaceMembership) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := memberKey(m.WorkspaceID, m.UserID)
	if existing, ok := db.wsMembers[key]; ok {
		existing.Role = m.Role
		existing.Status = m.Status
		*m = *existing
		return nil
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now()
	cp := *m
	db.wsMembers[key] = &cp
	return nil
}

// ListWorkspaceMembers 列出工作区成员
func (db *LocalDatabase) ListWorkspaceMembers(workspaceID string) ([]models.WorkspaceMembership, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []models.WorkspaceMembership
	for _, m := range db.wsMembers {
		if m.WorkspaceID == workspaceID {
			out = append(out, *m)
		}
	}
	return out, nil
}

// ==== Boards ====

// CreateBoard 创建看板，创建者成为看板 owner
func (db *LocalDatabase) CreateBoard(board *models.Board, ownerID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.workspaces[board.WorkspaceID]; !ok {
		return ErrNotFound
	}
	if board.ID == "" {
		board.ID = uuid.New().String()
	}
	board.CreatedAt = time.Now()
	board.UpdatedAt = time.Now()

	cp := *board
	db.boards[board.ID] = &cp

	m := &models.BoardMembership{
		ID:        uuid.New().String(),
		BoardID:   board.ID,
		UserID:    ownerID,
		Role:      models.BoardRoleOwner,
		CreatedAt: time.Now(),
	}
	db.boardMembers[memberKey(board.ID, ownerID)] = m
	return nil
}

// GetBoard 获取看板
func (db *LocalDatabase) GetBoard(id string) (*models.Board, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	b, ok := db.boards[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// GetBoardByInviteLinkToken 根据永久邀请链接 token 查找看板
func (db *LocalDatabase) GetBoardByInviteLinkToken(token string) (*models.Board, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, b := range db.boards {
		if b.InviteLinkToken == token {
			cp := *b
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// SetBoardInviteLinkToken 更新永久邀请链接 token（空字符串表示撤销）
func (db *LocalDatabase) SetBoardInviteLinkToken(boardID, token string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	b, ok := db.boards[boardID]
	if !ok {
		return ErrNotFound
	}
	b.InviteLinkToken = token
	b.UpdatedAt = time.Now()
	return nil
}

// ListWorkspaceBoards 列出工作区下的看板
func (db *LocalDatabase) ListWorkspaceBoards(workspaceID string) ([]models.Board, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []models.Board
	for _, b := range db.boards {
		if b.WorkspaceID == workspaceID {
			out = append(out, *b)
		}
	}
	return out, nil
}

// GetBoardMembership 获取看板成员关系
func (db *LocalDatabase) GetBoardMembership(userID, boardID string) (*models.BoardMembership, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	m, ok := db.boardMembers[memberKey(boardID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	cp.Permissions = append([]models.BoardPermission(nil), m.Permissions...)
	return &cp, nil
}

// UpsertBoardMembership 创建或更新看板成员关系
func (db *LocalDatabase) UpsertBoardMembership(m *models.BoardMembership) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := memberKey(m.BoardID, m.UserID)
	if existing, ok := db.boardMembers[key]; ok {
		existing.Role = m.Role
		existing.Permissions = append([]models.BoardPermission(nil), m.Permissions...)
		*m = *existing
		return nil
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now()
	cp := *m
	cp.Permissions = append([]models.BoardPermission(nil), m.Permissions...)
	db.boardMembers[key] = &cp
	return nil
}

// ListBoardMembers 列出看板成员
func (db *LocalDatabase) ListBoardMembers(boardID string) ([]models.BoardMembership, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []models.BoardMembership
	for _, m := range db.boardMembers {
		if m.BoardID == boardID {
			out = append(out, *m)
		}
	}
	return out, nil
}

// ==== Lists ====

// GetList 获取列表
func (db *LocalDatabase) GetList(id string) (*models.List, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	l, ok := db.lists[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

// ListListsByBoard 按 position 升序列出看板下的列表
func (db *LocalDatabase) ListListsByBoard(boardID string) ([]models.List, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.listsByBoardLocked(boardID), nil
}

func (db *LocalDatabase) listsByBoardLocked(boardID string) []models.List {
	var out []models.List
	for _, l := range db.lists {
		if l.BoardID == boardID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// CreateList 创建列表并追加到看板末尾
func (db *LocalDatabase) CreateList(list *models.List, eng *position.Engine) error {
	lock := db.scopeLock("board:" + list.BoardID)
	lock.Lock()
	defer lock.Unlock()

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.boards[list.BoardID]; !ok {
		return ErrNotFound
	}
	siblings := db.listsByBoardLocked(list.BoardID)
	positions := make([]int64, len(siblings))
	for i, s := range siblings {
		positions[i] = s.Position
	}
	list.Position = eng.Append(positions)

	if list.ID == "" {
		list.ID = uuid.New().String()
	}
	list.CreatedAt = time.Now()
	list.UpdatedAt = time.Now()
	cp := *list
	db.lists[list.ID] = &cp
	return nil
}

// ReorderList 将列表移动到看板内的目标下标
func (db *LocalDatabase) ReorderList(listID string, targetIndex int, eng *position.Engine) error {
	db.mu.RLock()
	moved, ok := db.lists[listID]
	if !ok {
		db.mu.RUnlock()
		return ErrNotFound
	}
	boardID := moved.BoardID
	db.mu.RUnlock()

	lock := db.scopeLock("board:" + boardID)
	lock.Lock()
	defer lock.Unlock()

	db.mu.Lock()
	defer db.mu.Unlock()

	moved, ok = db.lists[listID]
	if !ok {
		return ErrNotFound
	}

	siblings := db.listsByBoardLocked(boardID)
	others := make([]models.List, 0, len(siblings))
	for _, s := range siblings {
		if s.ID != listID {
			others = append(others, s)
		}
	}
	positions := make([]int64, len(others))
	for i, s := range others {
		positions[i] = s.Position
	}

	placement := eng.PlaceAt(positions, targetIndex)
	if placement.Rebalanced != nil {
		for i, s := range others {
			db.lists[s.ID].Position = placement.Rebalanced[i]
			db.lists[s.ID].UpdatedAt = time.Now()
		}
	}
	moved.Position = placement.Position
	moved.UpdatedAt = time.Now()
	return nil
}

// ==== Cards ====

// GetCard 获取卡片
func (db *LocalDatabase) GetCard(id string) (*models.Card, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	c, ok := db.cards[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ListCardsByList 按 position 升序列出列表下的卡片
func (db *LocalDatabase) ListCardsByList(listID string) ([]models.Card, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.cardsByListLocked(listID), nil
}

func (db *LocalDatabase) cardsByListLocked(listID string) []models.Card {
	var out []models.Card
	for _, c := range db.cards {
		if c.ListID == listID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// CreateCard 创建卡片并追加到列表末尾，board_id 跟随所属列表
func (db *LocalDatabase) CreateCard(card *models.Card, eng *position.Engine) error {
	lock := db.scopeLock("list:" + card.ListID)
	lock.Lock()
	defer lock.Unlock()

	db.mu.Lock()
	defer db.mu.Unlock()

	list, ok := db.lists[card.ListID]
	if !ok {
		return ErrNotFound
	}
	card.BoardID = list.BoardID

	siblings := db.cardsByListLocked(card.ListID)
	positions := make([]int64, len(siblings))
	for i, s := range siblings {
		positions[i] = s.Position
	}
	card.Position = eng.Append(positions)

	if card.ID == "" {
		card.ID = uuid.New().String()
	}
	card.CreatedAt = time.Now()
	card.UpdatedAt = time.Now()
	cp := *card
	db.cards[card.ID] = &cp
	return nil
}

// MoveCard 在列表内或跨列表移动卡片。跨列表移动时 board_id 与 list_id
// 在同一次写入中更新，位置只依据目标列表的兄弟卡片计算。
func (db *LocalDatabase) MoveCard(cardID, targetListID string, targetIndex int, eng *position.Engine) error {
	lock := db.scopeLock("list:" + targetListID)
	lock.Lock()
	defer lock.Unlock()

	db.mu.Lock()
	defer db.mu.Unlock()

	card, ok := db.cards[cardID]
	if !ok {
		return ErrNotFound
	}
	targetList, ok := db.lists[targetListID]
	if !ok {
		return ErrNotFound
	}

	siblings := db.cardsByListLocked(targetListID)
	others := make([]models.Card, 0, len(siblings))
	for _, s := range siblings {
		if s.ID != cardID {
			others = append(others, s)
		}
	}
	positions := make([]int64, len(others))
	for i, s := range others {
		positions[i] = s.Position
	}

	placement := eng.PlaceAt(positions, targetIndex)
	if placement.Rebalanced != nil {
		for i, s := range others {
			db.cards[s.ID].Position = placement.Rebalanced[i]
			db.cards[s.ID].UpdatedAt = time.Now()
		}
	}
	card.ListID = targetListID
	card.BoardID = targetList.BoardID
	card.Position = placement.Position
	card.UpdatedAt = time.Now()
	return nil
}

// ==== Invitations ====

// CreateInvitation 创建邀请审计记录
func (db *LocalDatabase) CreateInvitation(inv *models.BoardInvitation) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.boards[inv.BoardID]; !ok {
		return ErrNotFound
	}
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = time.Now()
	cp := *inv
	db.invitations[inv.ID] = &cp
	db.invitationsByToken[inv.Token] = inv.ID
	return nil
}

// GetInvitationByToken 根据 token 获取邀请记录
func (db *LocalDatabase) GetInvitationByToken(token string) (*models.BoardInvitation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	id, ok := db.invitationsByToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	inv := db.invitations[id]
	cp := *inv
	return &cp, nil
}

// ConsumeInvitation 原子地消费邀请并授予看板成员资格。
// 并发调用时只有第一个成功，之后的调用返回 ErrAlreadyConsumed；
// 两次写入在同一把锁下完成，不会出现只消费不入成员的中间状态。
func (db *LocalDatabase) ConsumeInvitation(id string, membership *models.BoardMembership) (*models.BoardMembership, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	inv, ok := db.invitations[id]
	if !ok {
		return nil, ErrNotFound
	}
	if inv.Consumed {
		return nil, ErrAlreadyConsumed
	}

	key := memberKey(membership.BoardID, membership.UserID)
	granted, ok := db.boardMembers[key]
	if !ok {
		if membership.ID == "" {
			membership.ID = uuid.New().String()
		}
		membership.CreatedAt = time.Now()
		cp := *membership
		cp.Permissions = append([]models.BoardPermission(nil), membership.Permissions...)
		db.boardMembers[key] = &cp
		granted = &cp
	}

	inv.Consumed = true
	consumer := membership.UserID
	inv.ConsumedBy = &consumer
	inv.UpdatedAt = time.Now()

	out := *granted
	out.Permissions = append([]models.BoardPermission(nil), granted.Permissions...)
	return &out, nil
}

// ListBoardInvitations 列出看板的邀请记录
func (db *LocalDatabase) ListBoardInvitations(boardID string) ([]models.BoardInvitation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []models.BoardInvitation
	for _, inv := range db.invitations {
		if inv.BoardID == boardID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

// HealthCheck 健康检查
func (db *LocalDatabase) HealthCheck() error {
	return nil
}

// Close 关闭连接（内存数据库无需关闭）
func (db *LocalDatabase) Close() error {
	return nil
}
