/*
 * Copyright (C) 2026  Henrique Almeida
 * This file is part of OrderScout.
 *
 * OrderScout is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published
 * by the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * OrderScout is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with OrderScout.  If not, see <https://www.gnu.org/licenses/>.
 */

package storage

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/h3nc4/OrderScout/internal/model"
)

// DefaultMaxGroups is the capacity of a worker created without one
const DefaultMaxGroups = 50

func (s *Store) CreateWorker(ctx context.Context, w *model.Worker) error {
	if w.MaxGroups <= 0 {
		w.MaxGroups = DefaultMaxGroups
	}
	if err := s.db.WithContext(ctx).Create(w).Error; err != nil {
		return errors.Wrap(err, "create worker")
	}
	return nil
}

func (s *Store) Worker(ctx context.Context, id int64) (*model.Worker, error) {
	var w model.Worker
	if err := s.db.WithContext(ctx).First(&w, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

// Workers lists all workers in stable name order
func (s *Store) Workers(ctx context.Context) ([]model.Worker, error) {
	var workers []model.Worker
	err := s.db.WithContext(ctx).Order("name, id").Find(&workers).Error
	if err != nil {
		return nil, errors.Wrap(err, "list workers")
	}
	return workers, nil
}

// ActiveWorkers lists active workers in stable name order
func (s *Store) ActiveWorkers(ctx context.Context) ([]model.Worker, error) {
	var workers []model.Worker
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("name, id").Find(&workers).Error
	if err != nil {
		return nil, errors.Wrap(err, "list active workers")
	}
	return workers, nil
}

// UpdateWorker applies the set fields of u
func (s *Store) UpdateWorker(ctx context.Context, id int64, u model.WorkerUpdate) (*model.Worker, error) {
	if !u.Empty() {
		fields := make(map[string]any, 4)
		if u.Name != nil {
			fields["name"] = *u.Name
		}
		if u.MaxGroups != nil {
			if *u.MaxGroups <= 0 {
				return nil, errors.New("max groups must be positive")
			}
			fields["max_groups"] = *u.MaxGroups
		}
		if u.Session != nil {
			fields["session"] = *u.Session
		}
		if u.IsActive != nil {
			fields["is_active"] = *u.IsActive
		}

		res := s.db.WithContext(ctx).Model(&model.Worker{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return nil, errors.Wrap(res.Error, "update worker")
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return s.Worker(ctx, id)
}

// DeleteWorker removes a worker and releases its assignments
func (s *Store) DeleteWorker(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("worker_id = ?", id).Delete(&model.GroupAssignment{}).Error; err != nil {
			return errors.Wrap(err, "release assignments")
		}
		res := tx.Delete(&model.Worker{}, id)
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete worker")
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// RecordWorkerFailure deactivates a worker that failed to start
func (s *Store) RecordWorkerFailure(ctx context.Context, id int64, msg string) error {
	return s.updateWorker(ctx, id, map[string]any{"is_active": false, "last_error": msg})
}

// MarkWorkerStarted records a successful start
func (s *Store) MarkWorkerStarted(ctx context.Context, id int64, now time.Time) error {
	return s.updateWorker(ctx, id, map[string]any{"last_active_at": now.UTC(), "last_error": ""})
}

func (s *Store) updateWorker(ctx context.Context, id int64, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&model.Worker{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return errors.Wrap(res.Error, "update worker")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceAssignments discards every assignment and stores the given set
func (s *Store) ReplaceAssignments(ctx context.Context, assignments []model.GroupAssignment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&model.GroupAssignment{}).Error; err != nil {
			return errors.Wrap(err, "clear assignments")
		}
		if len(assignments) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(assignments, 100).Error; err != nil {
			return errors.Wrap(err, "store assignments")
		}
		return nil
	})
}

// Assignment returns the assignment of chatID
func (s *Store) Assignment(ctx context.Context, chatID int64) (*model.GroupAssignment, error) {
	var a model.GroupAssignment
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&a).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// Assignments lists every assignment
func (s *Store) Assignments(ctx context.Context) ([]model.GroupAssignment, error) {
	var out []model.GroupAssignment
	err := s.db.WithContext(ctx).Order("chat_id").Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "list assignments")
	}
	return out, nil
}

// CreateAssignment stores a, reporting false when the chat is already assigned
func (s *Store) CreateAssignment(ctx context.Context, a *model.GroupAssignment) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(a)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "create assignment")
	}
	return res.RowsAffected > 0, nil
}

// DeleteAssignment releases a chat
func (s *Store) DeleteAssignment(ctx context.Context, chatID int64) error {
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&model.GroupAssignment{}).Error; err != nil {
		return errors.Wrap(err, "delete assignment")
	}
	return nil
}

// AssignmentCounts returns the number of assignments per worker
func (s *Store) AssignmentCounts(ctx context.Context) (map[int64]int, error) {
	var rows []struct {
		WorkerID int64
		Count    int
	}
	err := s.db.WithContext(ctx).Model(&model.GroupAssignment{}).
		Select("worker_id, COUNT(*) AS count").
		Group("worker_id").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "count assignments")
	}
	counts := make(map[int64]int, len(rows))
	for _, r := range rows {
		counts[r.WorkerID] = r.Count
	}
	return counts, nil
}

// WorkerChatIDs returns the authoritative watch-list of a worker connection
func (s *Store) WorkerChatIDs(ctx context.Context, workerID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&model.GroupAssignment{}).
		Where("worker_id = ?", workerID).
		Order("chat_id").
		Pluck("chat_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "list worker chats")
	}
	return ids, nil
}
