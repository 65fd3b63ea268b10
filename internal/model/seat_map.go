package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "go-gin-flight-booking/pkg/app_errors"
)

// SeatStatus 座位狀態 (closed enum)
type SeatStatus uint8

const (
	SeatAvailable SeatStatus = iota + 1
	SeatLocked
	SeatBooked
)

var seatStatusNames = map[SeatStatus]string{
	SeatAvailable: "available",
	SeatLocked:    "locked",
	SeatBooked:    "booked",
}

func (s SeatStatus) String() string {
	if name, ok := seatStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SeatStatus(%d)", uint8(s))
}

func (s SeatStatus) IsValid() bool {
	_, ok := seatStatusNames[s]
	return ok
}

func (s SeatStatus) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid seat status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *SeatStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseSeatStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseSeatStatus(v string) (SeatStatus, error) {
	for status, name := range seatStatusNames {
		if name == v {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown seat status %q", v)
}

// SeatError 帶出阻擋操作的座位清單，Unwrap 回 sentinel error
type SeatError struct {
	Err   error
	Seats []string
}

func (e *SeatError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, strings.Join(e.Seats, ", "))
}

func (e *SeatError) Unwrap() error {
	return e.Err
}

// SeatEntry is one row of the ordered seat map.
type SeatEntry struct {
	Seat   string     `json:"seat"`
	Status SeatStatus `json:"status"`
}

// SeatLock 記錄鎖定中座位屬於哪一把鎖與到期時間
type SeatLock struct {
	Seat      string
	LockID    string
	ExpiresAt time.Time
}

// SeatMap is an ordered seat-id → status container. Locked seats also carry
// the id and expiry of the lock holding them. It is not safe for concurrent
// use; callers serialize access per flight.
type SeatMap struct {
	order    []string
	statuses map[string]SeatStatus
	locks    map[string]SeatLock
}

func newEmptySeatMap(size int) *SeatMap {
	return &SeatMap{
		order:    make([]string, 0, size),
		statuses: make(map[string]SeatStatus, size),
		locks:    make(map[string]SeatLock),
	}
}

func NewSeatMap(seatIDs []string) (*SeatMap, error) {
	m := newEmptySeatMap(len(seatIDs))
	for _, id := range seatIDs {
		if err := m.add(id, SeatAvailable); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// GenerateSeatNumbers 產生座位編號：每排 6 座 (A-F)，從第 1 排開始
func GenerateSeatNumbers(total int) []string {
	seats := make([]string, 0, total)
	for i := 0; i < total; i++ {
		row := i/6 + 1
		column := rune('A' + i%6)
		seats = append(seats, fmt.Sprintf("%d%c", row, column))
	}
	return seats
}

func (m *SeatMap) add(id string, status SeatStatus) error {
	if id == "" {
		return fmt.Errorf("%w: empty seat id", apperrors.ErrInvalidInput)
	}
	if !status.IsValid() {
		return fmt.Errorf("%w: invalid status for seat %s", apperrors.ErrInvalidInput, id)
	}
	if _, exists := m.statuses[id]; exists {
		return fmt.Errorf("%w: duplicate seat %s", apperrors.ErrInvariantViolation, id)
	}
	m.order = append(m.order, id)
	m.statuses[id] = status
	return nil
}

func (m *SeatMap) Len() int {
	return len(m.order)
}

func (m *SeatMap) Status(seatID string) (SeatStatus, bool) {
	s, ok := m.statuses[seatID]
	return s, ok
}

func (m *SeatMap) Entries() []SeatEntry {
	entries := make([]SeatEntry, 0, len(m.order))
	for _, id := range m.order {
		entries = append(entries, SeatEntry{Seat: id, Status: m.statuses[id]})
	}
	return entries
}

func (m *SeatMap) SeatsWithStatus(status SeatStatus) []string {
	seats := make([]string, 0)
	for _, id := range m.order {
		if m.statuses[id] == status {
			seats = append(seats, id)
		}
	}
	return seats
}

func (m *SeatMap) CountAvailable() int {
	n := 0
	for _, s := range m.statuses {
		if s == SeatAvailable {
			n++
		}
	}
	return n
}

// AllInStatus reports whether every listed seat exists and currently has status.
func (m *SeatMap) AllInStatus(seatIDs []string, status SeatStatus) bool {
	for _, id := range seatIDs {
		if s, ok := m.statuses[id]; !ok || s != status {
			return false
		}
	}
	return true
}

// LockedBy reports whether every listed seat is locked by lockID.
func (m *SeatMap) LockedBy(seatIDs []string, lockID string) bool {
	return len(seatIDs) > 0 && len(m.notLockedBy(seatIDs, lockID)) == 0
}

// LockOf 回傳座位目前的鎖；未鎖定時 ok 為 false
func (m *SeatMap) LockOf(seatID string) (SeatLock, bool) {
	l, ok := m.locks[seatID]
	return l, ok
}

// Lock 以 lockID 鎖定座位：全部可用才會變更 (all-or-nothing)
func (m *SeatMap) Lock(seatIDs []string, lockID string, expiresAt time.Time) error {
	if err := ValidateSeatIDs(seatIDs); err != nil {
		return err
	}
	if lockID == "" {
		return fmt.Errorf("%w: empty lock id", apperrors.ErrInvalidInput)
	}
	if blocked := m.notIn(seatIDs, SeatAvailable); len(blocked) > 0 {
		return &SeatError{Err: apperrors.ErrSeatUnavailable, Seats: blocked}
	}
	for _, id := range seatIDs {
		m.statuses[id] = SeatLocked
		m.locks[id] = SeatLock{Seat: id, LockID: lockID, ExpiresAt: expiresAt.UTC()}
	}
	return nil
}

// Release 釋放仍屬於 lockID 的鎖定座位並回傳實際被釋放的座位；
// 已售出或已被其他鎖取得的座位不動
func (m *SeatMap) Release(seatIDs []string, lockID string) []string {
	released := make([]string, 0, len(seatIDs))
	for _, id := range seatIDs {
		if m.statuses[id] == SeatLocked && m.locks[id].LockID == lockID {
			m.statuses[id] = SeatAvailable
			delete(m.locks, id)
			released = append(released, id)
		}
	}
	return released
}

// ReleaseExpired 釋放到期時間早於 before 的鎖定座位
func (m *SeatMap) ReleaseExpired(before time.Time) []SeatLock {
	var released []SeatLock
	for _, id := range m.order {
		l, ok := m.locks[id]
		if !ok || m.statuses[id] != SeatLocked || !l.ExpiresAt.Before(before) {
			continue
		}
		m.statuses[id] = SeatAvailable
		delete(m.locks, id)
		released = append(released, l)
	}
	return released
}

// HasExpiredLocks reports whether any locked seat expired before the given time.
func (m *SeatMap) HasExpiredLocks(before time.Time) bool {
	for id, l := range m.locks {
		if m.statuses[id] == SeatLocked && l.ExpiresAt.Before(before) {
			return true
		}
	}
	return false
}

// Confirm 將 lockID 持有的座位轉為已售出 (all-or-nothing)
func (m *SeatMap) Confirm(seatIDs []string, lockID string) error {
	if err := ValidateSeatIDs(seatIDs); err != nil {
		return err
	}
	if blocked := m.notLockedBy(seatIDs, lockID); len(blocked) > 0 {
		return &SeatError{Err: apperrors.ErrSeatNotLocked, Seats: blocked}
	}
	for _, id := range seatIDs {
		m.statuses[id] = SeatBooked
		delete(m.locks, id)
	}
	return nil
}

// Vacate 取消訂位時把已售出的座位還回可用
func (m *SeatMap) Vacate(seatIDs []string) []string {
	vacated := make([]string, 0, len(seatIDs))
	for _, id := range seatIDs {
		if m.statuses[id] == SeatBooked {
			m.statuses[id] = SeatAvailable
			vacated = append(vacated, id)
		}
	}
	return vacated
}

func (m *SeatMap) notLockedBy(seatIDs []string, lockID string) []string {
	var blocked []string
	for _, id := range seatIDs {
		if m.statuses[id] != SeatLocked || m.locks[id].LockID != lockID {
			blocked = append(blocked, id)
		}
	}
	return blocked
}

func (m *SeatMap) notIn(seatIDs []string, status SeatStatus) []string {
	var blocked []string
	for _, id := range seatIDs {
		if s, ok := m.statuses[id]; !ok || s != status {
			blocked = append(blocked, id)
		}
	}
	return blocked
}

func (m *SeatMap) Clone() *SeatMap {
	c := &SeatMap{
		order:    make([]string, len(m.order)),
		statuses: make(map[string]SeatStatus, len(m.statuses)),
		locks:    make(map[string]SeatLock, len(m.locks)),
	}
	copy(c.order, m.order)
	for k, v := range m.statuses {
		c.statuses[k] = v
	}
	for k, v := range m.locks {
		c.locks[k] = v
	}
	return c
}

func (m *SeatMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Entries())
}

func (m *SeatMap) UnmarshalJSON(data []byte) error {
	var entries []SeatEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	fresh := newEmptySeatMap(len(entries))
	for _, e := range entries {
		if err := fresh.add(e.Seat, e.Status); err != nil {
			return err
		}
	}
	*m = *fresh
	return nil
}

// storedSeat 是寫入資料庫的座位格式，包含鎖的資訊；API 回應不帶鎖 ID
type storedSeat struct {
	Seat          string     `json:"seat"`
	Status        SeatStatus `json:"status"`
	LockID        string     `json:"lockId,omitempty"`
	LockExpiresAt *time.Time `json:"lockExpiresAt,omitempty"`
}

// MarshalStorage encodes the seat map with lock ownership for persistence.
func (m *SeatMap) MarshalStorage() ([]byte, error) {
	rows := make([]storedSeat, 0, len(m.order))
	for _, id := range m.order {
		row := storedSeat{Seat: id, Status: m.statuses[id]}
		if l, ok := m.locks[id]; ok {
			exp := l.ExpiresAt
			row.LockID = l.LockID
			row.LockExpiresAt = &exp
		}
		rows = append(rows, row)
	}
	return json.Marshal(rows)
}

func UnmarshalStoredSeatMap(data []byte) (*SeatMap, error) {
	var rows []storedSeat
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	m := newEmptySeatMap(len(rows))
	for _, row := range rows {
		if err := m.add(row.Seat, row.Status); err != nil {
			return nil, err
		}
		if row.Status != SeatLocked {
			continue
		}
		// 沒有到期時間的鎖視為已過期
		l := SeatLock{Seat: row.Seat, LockID: row.LockID}
		if row.LockExpiresAt != nil {
			l.ExpiresAt = row.LockExpiresAt.UTC()
		}
		m.locks[row.Seat] = l
	}
	return m, nil
}

// ValidateSeatIDs rejects empty requests and duplicated seat ids.
func ValidateSeatIDs(seatIDs []string) error {
	if len(seatIDs) == 0 {
		return fmt.Errorf("%w: no seats selected", apperrors.ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: seat %s requested twice", apperrors.ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
