package mongo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"Cloud_Animator/internal/models"
	"Cloud_Animator/pkg/database"
)

// Store 是 database.Store 接口的MongoDB实现。
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	reports *reportStore
	frames  *frameStore
}

// 确保 Store 实现了 database.Store 接口 (编译时检查)
var _ database.Store = (*Store)(nil)

// reportStore 封装了与 "reports" 集合相关的所有操作。
type reportStore struct {
	coll *mongo.Collection
}

// frameStore 封装了与 "frames" 集合相关的所有操作。
type frameStore struct {
	coll *mongo.Collection
}

// NewStore 创建并返回一个新的 Store 实例，并建立与MongoDB的连接。
func NewStore(ctx context.Context, uri, name string) (*Store, error) {
	slog.Info("正在连接到 MongoDB...", "database", name)
	clientCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(clientCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(clientCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	slog.Info("MongoDB 连接成功")

	db := client.Database(name)
	return &Store{
		client:  client,
		db:      db,
		reports: &reportStore{coll: db.Collection("reports")},
		frames:  &frameStore{coll: db.Collection("frames")},
	}, nil
}

func (s *Store) Reports() database.ReportStore {
	return s.reports
}

func (s *Store) Frames() database.FrameStore {
	return s.frames
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	slog.Info("正在确保数据库索引存在...")
	reportIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "runId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_runid_unique"),
		},
		{
			Keys:    bson.D{{Key: "product", Value: 1}, {Key: "year", Value: 1}, {Key: "finishedAt", Value: -1}},
			Options: options.Index().SetName("idx_product_year_finished"),
		},
		{
			Keys:    bson.D{{Key: "finishedAt", Value: -1}},
			Options: options.Index().SetName("idx_finished"),
		},
	}
	if _, err := s.reports.coll.Indexes().CreateMany(ctx, reportIndexes); err != nil {
		slog.Error("为 reports 集合创建索引失败", "error", err)
		return err
	}
	slog.Info("Reports 集合索引已验证/创建。")

	frameIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "runId", Value: 1}, {Key: "index", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_runid_index_unique"),
		},
		{
			Keys:    bson.D{{Key: "perceptualHash", Value: 1}},
			Options: options.Index().SetName("idx_phash"),
		},
	}
	if _, err := s.frames.coll.Indexes().CreateMany(ctx, frameIndexes); err != nil {
		slog.Error("为 frames 集合创建索引失败", "error", err)
		return err
	}
	slog.Info("Frames 集合索引已验证/创建。")
	return nil
}

// DropAllCollections 删除当前数据库中的所有已知集合，主要用于测试环境的重置。
func (s *Store) DropAllCollections(ctx context.Context) error {
	slog.Warn("正在删除所有集合...", "database", s.db.Name())
	if err := s.frames.coll.Drop(ctx); err != nil {
		slog.Error("删除 frames 集合失败", "error", err)
		// 即使出错也继续尝试删除其他集合
	}
	if err := s.reports.coll.Drop(ctx); err != nil {
		slog.Error("删除 reports 集合失败", "error", err)
		return err
	}
	slog.Info("所有集合已成功删除。")
	return nil
}

// --- reportStore 方法实现 ---

func (r *reportStore) Save(ctx context.Context, report *models.YearReport) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"runId": report.RunID}, report, opts)
	return err
}

func (r *reportStore) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*models.YearReport, error) {
	var report models.YearReport
	err := r.coll.FindOne(ctx, filter, opts...).Decode(&report)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &report, nil
}

func (r *reportStore) Get(ctx context.Context, product, year string) (*models.YearReport, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "finishedAt", Value: -1}})
	return r.findOne(ctx, bson.M{"product": product, "year": year}, opts)
}

func (r *reportStore) GetByRunID(ctx context.Context, runID string) (*models.YearReport, error) {
	return r.findOne(ctx, bson.M{"runId": runID})
}

// List 按结束时间倒序分页列出报告，不返回封面缩略图。
func (r *reportStore) List(ctx context.Context, page, limit int) ([]models.YearReport, int64, error) {
	page, limit = database.NormalizePage(page, limit)
	skip := (page - 1) * limit

	findOpts := options.Find().
		SetSkip(int64(skip)).
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "finishedAt", Value: -1}}).
		SetProjection(bson.M{"thumbnail": 0})
	cursor, err := r.coll.Find(ctx, bson.D{}, findOpts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var list []models.YearReport
	if err = cursor.All(ctx, &list); err != nil {
		return nil, 0, err
	}
	total, err := r.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// --- frameStore 方法实现 ---

// ReplaceForRun 先删除该运行的旧记录，再批量插入。
func (f *frameStore) ReplaceForRun(ctx context.Context, runID string, frames []models.FrameRecord) error {
	writes := make([]mongo.WriteModel, 0, len(frames)+1)
	writes = append(writes, mongo.NewDeleteManyModel().SetFilter(bson.M{"runId": runID}))
	for _, fr := range frames {
		fr.RunID = runID
		writes = append(writes, mongo.NewInsertOneModel().SetDocument(fr))
	}
	// 删除必须先于插入，所以这里是有序写入
	_, err := f.coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
	if err != nil {
		slog.Error("frameStore BulkWrite 发生错误", "error", err)
		return err
	}
	return nil
}

func (f *frameStore) ListByRun(ctx context.Context, runID string) ([]models.FrameRecord, error) {
	cursor, err := f.coll.Find(ctx, bson.M{"runId": runID}, options.Find().SetSort(bson.D{{Key: "index", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var frames []models.FrameRecord
	if err = cursor.All(ctx, &frames); err != nil {
		return nil, err
	}
	return frames, nil
}
