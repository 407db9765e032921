// Package scenedb stores trained scene checkpoints in SQLite: the Gaussian
// point set, the camera views of every split and a small key/value table
// of scene metadata.
package scenedb

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/splat.report/internal/splat"
)

// Metadata keys.
const (
	MetaDatasetType = "dataset_type"
	MetaSHDegree    = "sh_degree"
	MetaHasMotion   = "has_motion"
	MetaIteration   = "iteration"
)

// FileName is the checkpoint file inside point_cloud/iteration_<N>/.
const FileName = "scene.db"

type SceneDB struct {
	*sql.DB
}

// schema.sql creates the gaussians, cameras and scene_meta tables.
//
//go:embed schema.sql
var schemaSQL string

// Create opens path, creating the file and schema if needed.
func Create(path string) (*SceneDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply scene schema: %w", err)
	}
	return &SceneDB{db}, nil
}

// Open opens an existing checkpoint.
func Open(path string) (*SceneDB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("scene checkpoint: %w", err)
	}
	return Create(path)
}

// PutMeta stores a metadata value.
func (s *SceneDB) PutMeta(key, value string) error {
	_, err := s.Exec(`INSERT INTO scene_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to store meta %s: %w", key, err)
	}
	return nil
}

// Meta reads a metadata value; ok is false when the key is absent.
func (s *SceneDB) Meta(key string) (value string, ok bool, err error) {
	err = s.QueryRow(`SELECT value FROM scene_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read meta %s: %w", key, err)
	}
	return value, true, nil
}

// PutGaussians replaces the stored point set.
func (s *SceneDB) PutGaussians(ctx context.Context, g *splat.GaussianModel) error {
	if err := g.Validate(); err != nil {
		return err
	}

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM gaussians`); err != nil {
		return fmt.Errorf("failed to clear gaussians: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO gaussians (
			id, x, y, z, scale_x, scale_y, scale_z, rot_w, rot_x, rot_y, rot_z,
			opacity, dc_r, dc_g, dc_b, vel_x, vel_y, vel_z,
			dscale_x, dscale_y, dscale_z, dopacity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range g.Means {
		var m splat.Motion
		if g.Motion != nil {
			m = g.Motion[i]
		}
		mu, sc, q, dc := g.Means[i], g.Scales[i], g.Rotations[i], g.SHDC[i]
		if _, err := stmt.ExecContext(ctx, i,
			mu[0], mu[1], mu[2], sc[0], sc[1], sc[2], q[0], q[1], q[2], q[3],
			g.Opacities[i], dc[0], dc[1], dc[2],
			m.Velocity[0], m.Velocity[1], m.Velocity[2],
			m.ScaleRate[0], m.ScaleRate[1], m.ScaleRate[2], m.OpacityRate,
		); err != nil {
			return fmt.Errorf("failed to insert gaussian %d: %w", i, err)
		}
	}

	if err := putMetaTx(ctx, tx, MetaSHDegree, strconv.Itoa(g.SHDegree)); err != nil {
		return err
	}
	if err := putMetaTx(ctx, tx, MetaHasMotion, strconv.FormatBool(g.Motion != nil)); err != nil {
		return err
	}
	return tx.Commit()
}

func putMetaTx(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO scene_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to store meta %s: %w", key, err)
	}
	return nil
}

// Gaussians loads the stored point set in index order.
func (s *SceneDB) Gaussians(ctx context.Context) (*splat.GaussianModel, error) {
	g := &splat.GaussianModel{}
	if v, ok, err := s.Meta(MetaSHDegree); err != nil {
		return nil, err
	} else if ok {
		if g.SHDegree, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid sh_degree %q: %w", v, err)
		}
	}
	hasMotion := false
	if v, ok, err := s.Meta(MetaHasMotion); err != nil {
		return nil, err
	} else if ok {
		hasMotion, _ = strconv.ParseBool(v)
	}

	rows, err := s.QueryContext(ctx, `SELECT
			x, y, z, scale_x, scale_y, scale_z, rot_w, rot_x, rot_y, rot_z,
			opacity, dc_r, dc_g, dc_b, vel_x, vel_y, vel_z,
			dscale_x, dscale_y, dscale_z, dopacity
		FROM gaussians ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query gaussians: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			mu, sc, dc [3]float64
			q          [4]float64
			opacity    float64
			m          splat.Motion
		)
		if err := rows.Scan(
			&mu[0], &mu[1], &mu[2], &sc[0], &sc[1], &sc[2], &q[0], &q[1], &q[2], &q[3],
			&opacity, &dc[0], &dc[1], &dc[2],
			&m.Velocity[0], &m.Velocity[1], &m.Velocity[2],
			&m.ScaleRate[0], &m.ScaleRate[1], &m.ScaleRate[2], &m.OpacityRate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan gaussian row: %w", err)
		}
		g.Means = append(g.Means, mu)
		g.Scales = append(g.Scales, sc)
		g.Rotations = append(g.Rotations, q)
		g.Opacities = append(g.Opacities, opacity)
		g.SHDC = append(g.SHDC, dc)
		if hasMotion {
			g.Motion = append(g.Motion, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if hasMotion && g.Motion == nil {
		g.Motion = []splat.Motion{}
	}
	return g, nil
}

type pose struct {
	R [9]float64 `json:"R"`
	T [3]float64 `json:"T"`
}

// PutCameras replaces the views stored for split, keeping their order.
func (s *SceneDB) PutCameras(ctx context.Context, split splat.Split, cams []*splat.Camera) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cameras WHERE split = ?`, string(split)); err != nil {
		return fmt.Errorf("failed to clear %s cameras: %w", split, err)
	}
	for i, c := range cams {
		p, err := json.Marshal(pose{R: c.R, T: c.T})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO cameras (
				split, idx, uid, name, width, height, fov_x, fov_y, pose_json, time, image_path
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(split), i, c.UID, c.Name, c.Width, c.Height, c.FoVx, c.FoVy, string(p), c.Time, c.ImagePath,
		); err != nil {
			return fmt.Errorf("failed to insert %s camera %d: %w", split, i, err)
		}
	}
	return tx.Commit()
}

// Cameras loads the views of split in stored order. Images are not loaded.
func (s *SceneDB) Cameras(ctx context.Context, split splat.Split) ([]*splat.Camera, error) {
	rows, err := s.QueryContext(ctx, `SELECT uid, name, width, height, fov_x, fov_y, pose_json, time, image_path
		FROM cameras WHERE split = ? ORDER BY idx`, string(split))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s cameras: %w", split, err)
	}
	defer rows.Close()

	var cams []*splat.Camera
	for rows.Next() {
		c := &splat.Camera{}
		var poseJSON string
		if err := rows.Scan(&c.UID, &c.Name, &c.Width, &c.Height, &c.FoVx, &c.FoVy, &poseJSON, &c.Time, &c.ImagePath); err != nil {
			return nil, fmt.Errorf("failed to scan camera row: %w", err)
		}
		var p pose
		if err := json.Unmarshal([]byte(poseJSON), &p); err != nil {
			return nil, fmt.Errorf("camera %s: invalid pose: %w", c.Name, err)
		}
		c.R, c.T = p.R, p.T
		cams = append(cams, c)
	}
	return cams, rows.Err()
}
