// Package mongostore implements store.Store on MongoDB, keeping users,
// posts and comments as documents that reference each other by id.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"scribe/domain"
	"scribe/store"
)

const (
	usersCollection    = "users"
	postsCollection    = "posts"
	commentsCollection = "comments"
	countersCollection = "counters"

	postSeqCounter = "posts"
)

type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	posts    *mongo.Collection
	comments *mongo.Collection
	counters *mongo.Collection
}

var _ store.Store = (*Store)(nil)

type userDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Email     string    `bson:"email"`
	Password  string    `bson:"password"`
	CreatedAt time.Time `bson:"createdAt"`
}

type postDoc struct {
	ID        string    `bson:"_id"`
	Title     string    `bson:"title"`
	Content   string    `bson:"content"`
	Author    string    `bson:"author"`
	CreatedAt time.Time `bson:"createdAt"`
	Seq       int64     `bson:"seq"` // tiebreak within a millisecond
	Comments  []string  `bson:"comments"`
}

type commentDoc struct {
	ID        string    `bson:"_id"`
	Text      string    `bson:"text"`
	Author    string    `bson:"author"`
	Post      string    `bson:"post"`
	CreatedAt time.Time `bson:"createdAt"`
}

// Connect dials uri, checks the connection and ensures indexes exist.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("error connecting to mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:   client,
		users:    db.Collection(usersCollection),
		posts:    db.Collection(postsCollection),
		comments: db.Collection(commentsCollection),
		counters: db.Collection(countersCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("error creating users index: %w", err)
	}
	_, err = s.posts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "seq", Value: -1}}},
		{Keys: bson.D{{Key: "author", Value: 1}, {Key: "createdAt", Value: -1}, {Key: "seq", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("error creating posts indexes: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (d userDoc) toDomain() *domain.User {
	return &domain.User{ID: d.ID, Name: d.Name, Email: d.Email, PasswordHash: d.Password, CreatedAt: d.CreatedAt.UTC()}
}

func (d postDoc) toDomain() domain.Post {
	comments := d.Comments
	if comments == nil {
		comments = []string{}
	}
	return domain.Post{
		ID:         d.ID,
		Title:      d.Title,
		Content:    d.Content,
		AuthorID:   d.Author,
		CreatedAt:  d.CreatedAt.UTC(),
		CommentIDs: comments,
	}
}

func (d commentDoc) toDomain() domain.Comment {
	return domain.Comment{ID: d.ID, Text: d.Text, AuthorID: d.Author, PostID: d.Post, CreatedAt: d.CreatedAt.UTC()}
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := s.users.InsertOne(ctx, userDoc{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Password:  u.PasswordHash,
		CreatedAt: u.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("error inserting into users: %w", err)
	}
	return nil
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("error finding user: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Store) UsersByID(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	users := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	cursor, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("error finding users: %w", err)
	}
	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("error decoding users: %w", err)
	}
	for _, d := range docs {
		users[d.ID] = d.toDomain()
	}
	return users, nil
}

// nextSeq atomically increments the named counter and returns the new value.
func (s *Store) nextSeq(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("error incrementing %s counter: %w", name, err)
	}
	return counter.Seq, nil
}

func (s *Store) CreatePost(ctx context.Context, p *domain.Post) error {
	seq, err := s.nextSeq(ctx, postSeqCounter)
	if err != nil {
		return err
	}
	_, err = s.posts.InsertOne(ctx, postDoc{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		Author:    p.AuthorID,
		CreatedAt: p.CreatedAt,
		Seq:       seq,
		Comments:  []string{},
	})
	if err != nil {
		return fmt.Errorf("error inserting into posts: %w", err)
	}
	return nil
}

func (s *Store) PostByID(ctx context.Context, id string) (*domain.Post, error) {
	var doc postDoc
	if err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("error finding post: %w", err)
	}
	p := doc.toDomain()
	return &p, nil
}

func (s *Store) findPosts(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Post, error) {
	cursor, err := s.posts.Find(ctx, filter, opts.SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "seq", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("error finding posts: %w", err)
	}
	var docs []postDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("error decoding posts: %w", err)
	}
	posts := make([]domain.Post, 0, len(docs))
	for _, d := range docs {
		posts = append(posts, d.toDomain())
	}
	return posts, nil
}

func (s *Store) ListPosts(ctx context.Context, offset, limit int) ([]domain.Post, error) {
	return s.findPosts(ctx, bson.M{}, options.Find().SetSkip(int64(offset)).SetLimit(int64(limit)))
}

func (s *Store) CountPosts(ctx context.Context) (int, error) {
	n, err := s.posts.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("error counting posts: %w", err)
	}
	return int(n), nil
}

func (s *Store) PostsByAuthor(ctx context.Context, authorID string) ([]domain.Post, error) {
	return s.findPosts(ctx, bson.M{"author": authorID}, options.Find())
}

func (s *Store) UpdatePost(ctx context.Context, id string, draft domain.PostDraft) error {
	result, err := s.posts.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"title": draft.Title, "content": draft.Content}})
	if err != nil {
		return fmt.Errorf("error updating post: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	result, err := s.posts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("error deleting post: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddComment inserts the comment, then pushes its id onto the post with a
// single atomic $push. If the push does not land, the comment is removed
// again so no unreferenced comment survives.
func (s *Store) AddComment(ctx context.Context, c *domain.Comment) error {
	_, err := s.comments.InsertOne(ctx, commentDoc{
		ID:        c.ID,
		Text:      c.Text,
		Author:    c.AuthorID,
		Post:      c.PostID,
		CreatedAt: c.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("error inserting into comments: %w", err)
	}

	result, err := s.posts.UpdateOne(ctx, bson.M{"_id": c.PostID}, bson.M{"$push": bson.M{"comments": c.ID}})
	if err == nil && result.MatchedCount == 1 {
		return nil
	}
	if _, delErr := s.comments.DeleteOne(context.WithoutCancel(ctx), bson.M{"_id": c.ID}); delErr != nil {
		return fmt.Errorf("error removing unreferenced comment %s: %w", c.ID, delErr)
	}
	if err != nil {
		return fmt.Errorf("error appending comment to post: %w", err)
	}
	return domain.ErrNotFound
}

func (s *Store) CommentsByID(ctx context.Context, ids []string) ([]domain.Comment, error) {
	if len(ids) == 0 {
		return []domain.Comment{}, nil
	}
	cursor, err := s.comments.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("error finding comments: %w", err)
	}
	var docs []commentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("error decoding comments: %w", err)
	}
	byID := make(map[string]domain.Comment, len(docs))
	for _, d := range docs {
		byID[d.ID] = d.toDomain()
	}
	comments := make([]domain.Comment, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			comments = append(comments, c)
		}
	}
	return comments, nil
}
