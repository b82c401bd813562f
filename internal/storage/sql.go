package storage

import (
	"context"
	"errors"

	"github.com/AaronLay10/ActionGraph/internal/storage/postgres"
)

// SceneDB is the scene table of a database. *postgres.Client satisfies it.
type SceneDB interface {
	PutScene(ctx context.Context, sceneID string, document []byte) error
	GetScene(ctx context.Context, sceneID string) (*postgres.SceneRow, error)
	ListScenes(ctx context.Context) ([]string, error)
	DeleteScene(ctx context.Context, sceneID string) error
}

// SQLStore keeps scenes as JSON documents in a database table.
type SQLStore struct {
	db SceneDB
}

func NewSQLStore(db SceneDB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) List(ctx context.Context) ([]string, error) {
	return s.db.ListScenes(ctx)
}

func (s *SQLStore) Load(ctx context.Context, id string) (*Scene, error) {
	row, err := s.db.GetScene(ctx, id)
	if errors.Is(err, postgres.ErrNoScene) {
		return nil, ErrSceneNotFound
	}
	if err != nil {
		return nil, err
	}
	scene, err := Decode(jsonCodec{}, row.Document)
	if err != nil {
		return nil, err
	}
	scene.ID = id
	return scene, nil
}

func (s *SQLStore) Save(ctx context.Context, scene *Scene) error {
	doc, err := Encode(jsonCodec{}, scene)
	if err != nil {
		return err
	}
	return s.db.PutScene(ctx, scene.ID, doc)
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	err := s.db.DeleteScene(ctx, id)
	if errors.Is(err, postgres.ErrNoScene) {
		return ErrSceneNotFound
	}
	return err
}
