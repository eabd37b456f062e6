package database

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the relational store backing the out-of-scope HTTP CRUD
// surface, the config cache refresh join, and the leaderboard recompute job.
type Database struct {
	db *gorm.DB
}

// Models

// Trader is a leader address whose fills the core mirrors.
type Trader struct {
	Address   string `gorm:"primaryKey"`
	Name      string
	CreatedAt time.Time
}

// Follower is an account that mirrors one or more traders.
type Follower struct {
	ID             uint `gorm:"primaryKey;autoIncrement"`
	Address        string `gorm:"uniqueIndex"`
	AgentSignature string
	CreatedAt      time.Time
}

// CopyConfig is one (trader -> follower) copy relationship; the join this
// struct backs is the config cache's source of truth (spec.md §4.3).
type CopyConfig struct {
	ID               uint `gorm:"primaryKey;autoIncrement"`
	FollowerID       uint `gorm:"index"`
	TraderAddress    string `gorm:"index"`
	Ratio            decimal.Decimal `gorm:"type:decimal(20,8)"`
	MaxRiskPerTrade  *decimal.Decimal `gorm:"type:decimal(20,8)"`
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ExecutedTrade records a follower order the executor submitted. Write-only
// from the core's perspective; read by the leaderboard job.
type ExecutedTrade struct {
	ID              uint `gorm:"primaryKey;autoIncrement"`
	TraderAddress   string `gorm:"index"`
	FollowerAddress string `gorm:"index"`
	Coin            string
	Dir             string
	IsBuy           bool
	Px              decimal.Decimal `gorm:"type:decimal(20,8)"`
	Sz              decimal.Decimal `gorm:"type:decimal(20,8)"`
	ClosedPnL       *decimal.Decimal `gorm:"type:decimal(20,8)"`
	ExchangeOrderID uint64
	Status          string // "filled", "resting", "rejected", "unexpected"
	Timestamp       time.Time
	CreatedAt       time.Time
}

// LeaderboardEntry is the per-trader recomputed ranking row.
type LeaderboardEntry struct {
	TraderAddress  string `gorm:"primaryKey"`
	PnLPercent30d  decimal.Decimal `gorm:"type:decimal(10,4)"`
	WinRate        decimal.Decimal `gorm:"type:decimal(10,4)"`
	Sharpe         decimal.Decimal `gorm:"type:decimal(10,4)"`
	MaxDrawdown    decimal.Decimal `gorm:"type:decimal(10,4)"`
	FollowersCount int64
	Volume7d       decimal.Decimal `gorm:"type:decimal(20,6)"`
	UpdatedAt      time.Time
}

func New(dbURL string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbURL), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("database connected (postgres)")
	} else {
		dir := filepath.Dir(dbURL)
		if dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(dbURL), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbURL).Msg("database initialized (sqlite)")
	}

	if err := db.AutoMigrate(&Trader{}, &Follower{}, &CopyConfig{}, &ExecutedTrade{}, &LeaderboardEntry{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// ActiveFollowerRow is the flattened join row the config cache refresher
// consumes (spec.md §4.3's SELECT).
type ActiveFollowerRow struct {
	TraderAddress   string
	FollowerAddress string
	AgentSignature  string
	Ratio           decimal.Decimal
	MaxRiskPerTrade *decimal.Decimal
}

// LoadActiveFollowers runs the leader->follower join for all active configs.
func (d *Database) LoadActiveFollowers() ([]ActiveFollowerRow, error) {
	var rows []ActiveFollowerRow
	err := d.db.Table("copy_configs c").
		Select("c.trader_address, f.address as follower_address, f.agent_signature, c.ratio, c.max_risk_per_trade").
		Joins("JOIN followers f ON c.follower_id = f.id").
		Where("c.is_active = ?", true).
		Scan(&rows).Error
	return rows, err
}

// SaveExecutedTrade persists one follower order submission.
func (d *Database) SaveExecutedTrade(t *ExecutedTrade) error {
	t.CreatedAt = time.Now()
	return d.db.Create(t).Error
}

// DistinctActiveTraders returns traders with activity in the lookback window,
// used by the leaderboard job (original_source engine/leaderboard.rs).
func (d *Database) DistinctActiveTraders(lookback time.Duration) ([]string, error) {
	var traders []string
	cutoff := time.Now().Add(-lookback)
	err := d.db.Model(&ExecutedTrade{}).
		Where("timestamp > ?", cutoff).
		Distinct("trader_address").
		Pluck("trader_address", &traders).Error
	return traders, err
}

// TraderTrades returns a trader's executed trades since cutoff.
func (d *Database) TraderTrades(trader string, since time.Time) ([]ExecutedTrade, error) {
	var trades []ExecutedTrade
	err := d.db.Where("trader_address = ? AND timestamp > ?", trader, since).
		Order("timestamp ASC").Find(&trades).Error
	return trades, err
}

// FollowersCountFor returns the number of active followers of a trader.
func (d *Database) FollowersCountFor(trader string) (int64, error) {
	var count int64
	err := d.db.Model(&CopyConfig{}).
		Where("trader_address = ? AND is_active = ?", trader, true).
		Count(&count).Error
	return count, err
}

// UpsertLeaderboardEntry writes or updates one trader's ranking row.
func (d *Database) UpsertLeaderboardEntry(e *LeaderboardEntry) error {
	e.UpdatedAt = time.Now()
	return d.db.Save(e).Error
}

// --- HTTP CRUD surface queries (internal/api) ---

func (d *Database) ListTraders() ([]Trader, error) {
	var traders []Trader
	err := d.db.Find(&traders).Error
	return traders, err
}

func (d *Database) CreateFollower(f *Follower) error {
	f.CreatedAt = time.Now()
	return d.db.Create(f).Error
}

func (d *Database) GetFollower(id uint) (*Follower, error) {
	var f Follower
	err := d.db.First(&f, id).Error
	return &f, err
}

func (d *Database) ListFollowers() ([]Follower, error) {
	var followers []Follower
	err := d.db.Find(&followers).Error
	return followers, err
}

func (d *Database) DeleteFollower(id uint) error {
	return d.db.Delete(&Follower{}, id).Error
}

func (d *Database) CreateCopyConfig(c *CopyConfig) error {
	c.CreatedAt = time.Now()
	c.UpdatedAt = time.Now()
	return d.db.Create(c).Error
}

func (d *Database) UpdateCopyConfig(c *CopyConfig) error {
	c.UpdatedAt = time.Now()
	return d.db.Save(c).Error
}

func (d *Database) GetCopyConfig(id uint) (*CopyConfig, error) {
	var c CopyConfig
	err := d.db.First(&c, id).Error
	return &c, err
}

func (d *Database) ListLeaderboard(limit int) ([]LeaderboardEntry, error) {
	var entries []LeaderboardEntry
	err := d.db.Order("pn_l_percent30d DESC").Limit(limit).Find(&entries).Error
	return entries, err
}
