package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"tokenescrow/core/events"
	"tokenescrow/core/types"
	"tokenescrow/native/escrow"
	"tokenescrow/native/token"
	"tokenescrow/observability"
)

var (
	ErrDSNRequired = errors.New("indexer: dsn required")
	ErrNotFound    = errors.New("indexer: escrow not found")
)

// OpenEscrow is the read-model row of one open escrow record.
type OpenEscrow struct {
	Address                        string `gorm:"primaryKey"`
	Initializer                    string `gorm:"index"`
	InitializerDepositTokenAccount string
	InitializerReceiveTokenAccount string
	CustodyTokenAccount            string
	DepositMint                    string `gorm:"index"`
	DepositAmount                  Amount
	TakerAmount                    Amount
	BumpSeed                       uint8
	OpenedAt                       int64
	UpdatedAt                      time.Time
}

// Source is the ledger view needed to rebuild the read model.
type Source interface {
	Account(addr solana.PublicKey) (*types.Account, error)
	ProgramAccounts(owner solana.PublicKey) ([]types.KeyedAccount, error)
}

// Indexer maintains the open_escrows table from ledger events. It implements
// events.Emitter so it can be attached to the ledger directly.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to a sqlite DSN and migrates the schema.
func Open(dsn string) (*Indexer, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrDSNRequired
	}
	db, err := gorm.Open(sqlite.Open(trimmed), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open database: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) (*Indexer, error) {
	if err := db.AutoMigrate(&OpenEscrow{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db, logger: slog.Default().With("component", "indexer")}, nil
}

func (ix *Indexer) Close() error {
	sqlDB, err := ix.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit applies ledger events. Failures are logged; Rebuild repairs drift.
func (ix *Indexer) Emit(evt events.Event) {
	if evt == nil || evt.Event() == nil {
		return
	}
	payload := evt.Event()
	if !strings.HasPrefix(payload.Type, "escrow.") {
		return
	}
	if err := ix.Apply(context.Background(), payload); err != nil {
		ix.logger.Warn("apply escrow event", "type", payload.Type, "error", err)
	}
}

// Apply updates the read model for a single escrow event.
func (ix *Indexer) Apply(ctx context.Context, evt *types.Event) error {
	addr := evt.Attributes["escrow"]
	if addr == "" {
		return fmt.Errorf("indexer: event %s missing escrow address", evt.Type)
	}
	switch evt.Type {
	case escrow.EventTypeEscrowInitialized:
		row, err := rowFromEvent(evt)
		if err != nil {
			return err
		}
		return ix.upsert(ctx, row)
	case escrow.EventTypeEscrowExchanged, escrow.EventTypeEscrowCancelled:
		return ix.db.WithContext(ctx).Delete(&OpenEscrow{}, "address = ?", addr).Error
	default:
		return nil
	}
}

func (ix *Indexer) upsert(ctx context.Context, row *OpenEscrow) error {
	row.UpdatedAt = time.Now().UTC()
	return ix.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}

func rowFromEvent(evt *types.Event) (*OpenEscrow, error) {
	attrs := evt.Attributes
	deposit, err := strconv.ParseUint(attrs["depositAmount"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("indexer: depositAmount: %w", err)
	}
	taker, err := strconv.ParseUint(attrs["takerAmount"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("indexer: takerAmount: %w", err)
	}
	bump, err := strconv.ParseUint(attrs["bumpSeed"], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("indexer: bumpSeed: %w", err)
	}
	opened, _ := strconv.ParseInt(attrs["timestamp"], 10, 64)
	return &OpenEscrow{
		Address:                        attrs["escrow"],
		Initializer:                    attrs["initializer"],
		InitializerDepositTokenAccount: attrs["initializerDepositTokenAccount"],
		InitializerReceiveTokenAccount: attrs["initializerReceiveTokenAccount"],
		CustodyTokenAccount:            attrs["custodyTokenAccount"],
		DepositMint:                    attrs["depositMint"],
		DepositAmount:                  Amount(deposit),
		TakerAmount:                    Amount(taker),
		BumpSeed:                       uint8(bump),
		OpenedAt:                       opened,
	}, nil
}

// Scan reads every open record owned by programID straight from the ledger.
// Records that fail to decode are skipped.
func Scan(src Source, programID solana.PublicKey) ([]OpenEscrow, error) {
	accounts, err := src.ProgramAccounts(programID)
	if err != nil {
		return nil, err
	}
	out := make([]OpenEscrow, 0, len(accounts))
	for _, keyed := range accounts {
		rec, err := escrow.DecodeRecord(keyed.Account.Data)
		if err != nil {
			continue
		}
		row := OpenEscrow{
			Address:                        keyed.Address.String(),
			Initializer:                    rec.Initializer.String(),
			InitializerDepositTokenAccount: rec.InitializerDepositTokenAccount.String(),
			InitializerReceiveTokenAccount: rec.InitializerReceiveTokenAccount.String(),
			CustodyTokenAccount:            rec.CustodyTokenAccount.String(),
			DepositAmount:                  Amount(rec.DepositAmount),
			TakerAmount:                    Amount(rec.TakerAmount),
			BumpSeed:                       rec.BumpSeed,
		}
		if custody, err := src.Account(rec.CustodyTokenAccount); err == nil {
			if decoded, err := token.DecodeAccount(custody.Data); err == nil {
				row.DepositMint = decoded.Mint.String()
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// Rebuild replaces the table contents with a fresh ledger scan.
func (ix *Indexer) Rebuild(ctx context.Context, src Source, programID solana.PublicKey) (int, error) {
	rows, err := Scan(src, programID)
	if err != nil {
		return 0, err
	}
	err = ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&OpenEscrow{}).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		for i := range rows {
			rows[i].UpdatedAt = now
			if err := tx.Create(&rows[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("indexer: rebuild: %w", err)
	}
	observability.Events().SetOpen(len(rows))
	return len(rows), nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Initializer string
	DepositMint string
	Limit       int
}

// List returns open escrows ordered by address.
func (ix *Indexer) List(ctx context.Context, filter Filter) ([]OpenEscrow, error) {
	q := ix.db.WithContext(ctx).Model(&OpenEscrow{}).Order("address")
	if filter.Initializer != "" {
		q = q.Where("initializer = ?", filter.Initializer)
	}
	if filter.DepositMint != "" {
		q = q.Where("deposit_mint = ?", filter.DepositMint)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []OpenEscrow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("indexer: list: %w", err)
	}
	return rows, nil
}

// Get returns the row for a single record address.
func (ix *Indexer) Get(ctx context.Context, address string) (*OpenEscrow, error) {
	var row OpenEscrow
	err := ix.db.WithContext(ctx).First(&row, "address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
