package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"securefiles/server/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type fileDoc struct {
	ID            string    `bson:"_id"`
	UploaderID    string    `bson:"uploader"`
	Name          string    `bson:"name"`
	ContentType   string    `bson:"ctype"`
	Size          int64     `bson:"size"`
	BlobKey       string    `bson:"blob"`
	Uploaded      time.Time `bson:"at"`
	DownloadToken string    `bson:"dltok"`
}

func (d fileDoc) model() model.UploadedFile {
	return model.UploadedFile{
		ID:            d.ID,
		UploaderID:    d.UploaderID,
		Name:          d.Name,
		ContentType:   d.ContentType,
		Size:          d.Size,
		BlobKey:       d.BlobKey,
		UploadedAt:    d.Uploaded,
		DownloadToken: d.DownloadToken,
	}
}

func (s *Store) CreateFile(ctx context.Context, f model.UploadedFile) (model.UploadedFile, error) {
	if strings.TrimSpace(f.DownloadToken) == "" {
		return model.UploadedFile{}, errors.New("download_token_required")
	}
	if _, err := s.GetUserByID(ctx, f.UploaderID); err != nil {
		return model.UploadedFile{}, err
	}
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now()
	}

	doc := fileDoc{
		ID:            newID(),
		UploaderID:    f.UploaderID,
		Name:          f.Name,
		ContentType:   f.ContentType,
		Size:          f.Size,
		BlobKey:       f.BlobKey,
		Uploaded:      toMillis(f.UploadedAt),
		DownloadToken: f.DownloadToken,
	}
	if _, err := s.files().InsertOne(ctx, doc); err != nil {
		return model.UploadedFile{}, mapErr(err)
	}
	return doc.model(), nil
}

func (s *Store) findFile(ctx context.Context, filter bson.M) (*model.UploadedFile, error) {
	var doc fileDoc
	if err := s.files().FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	f := doc.model()
	return &f, nil
}

func (s *Store) GetFile(ctx context.Context, id string) (*model.UploadedFile, error) {
	return s.findFile(ctx, bson.M{"_id": id})
}

func (s *Store) GetFileByDownloadToken(ctx context.Context, token string) (*model.UploadedFile, error) {
	return s.findFile(ctx, bson.M{"dltok": token})
}

func (s *Store) ListFiles(ctx context.Context) ([]model.UploadedFile, error) {
	cur, err := s.files().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "at", Value: -1}}))
	if err != nil {
		return nil, mapErr(err)
	}
	defer cur.Close(ctx)

	var out []model.UploadedFile
	for cur.Next(ctx) {
		var doc fileDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.model())
	}
	return out, cur.Err()
}
