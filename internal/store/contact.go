package store

import (
	"fmt"
	"time"
)

// Contacts returns the stored contact list for the given owner identity,
// oldest first.
func (db *DB) Contacts(ownerID string) ([]Contact, error) {
	rows, err := db.Query(`
		SELECT owner_id, peer_id, name, company_id, added_at
		FROM contacts
		WHERE owner_id = ?
		ORDER BY added_at ASC, peer_id ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.OwnerID, &c.PeerID, &c.Name, &c.CompanyID, &c.AddedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// ReplaceContacts rewrites the owner's entire stored contact set in one
// transaction. Every mutation is a full snapshot rewrite, never a patch, so
// the stored list always matches the in-memory list exactly. Rows for other
// owners are untouched, which keeps concurrent sessions for different
// identities from colliding.
func (db *DB) ReplaceContacts(ownerID string, contacts []Contact) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM contacts WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("clear contacts: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, c := range contacts {
		addedAt := c.AddedAt
		if addedAt == 0 {
			addedAt = now
		}
		if _, err := tx.Exec(`
			INSERT INTO contacts (owner_id, peer_id, name, company_id, added_at)
			VALUES (?, ?, ?, ?, ?)`,
			ownerID, c.PeerID, c.Name, c.CompanyID, addedAt); err != nil {
			return fmt.Errorf("insert contact %q: %w", c.PeerID, err)
		}
	}
	return tx.Commit()
}

// ContactCount returns the number of stored contacts for an owner.
func (db *DB) ContactCount(ownerID string) (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM contacts WHERE owner_id = ?`, ownerID).Scan(&count)
	return count, err
}
