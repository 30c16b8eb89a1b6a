package portfolio

import (
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) SaveTransaction(txn *Transaction) error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Create(txn).Error
}

func (d *Database) SaveClosedPosition(rec *PositionRecord) error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Create(rec).Error
}

func (d *Database) SaveEquitySample(sample *EquitySample) error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Create(sample).Error
}

func (d *Database) GetTransactions(ticker string) ([]Transaction, error) {
	if d == nil || d.db == nil {
		return nil, nil
	}
	var out []Transaction
	q := d.db.Order("timestamp asc")
	if ticker != "" {
		q = q.Where("ticker = ?", ticker)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Database) GetRecentEquity(limit int) ([]EquitySample, error) {
	if d == nil || d.db == nil {
		return nil, nil
	}
	var out []EquitySample
	if err := d.db.Order("timestamp desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
