package service

import (
	"context"
	"errors"

	"github.com/fintrack/stockledger/internal/models"
	"github.com/fintrack/stockledger/internal/repository"
	"github.com/fintrack/stockledger/lib/errs"
	"github.com/fintrack/stockledger/lib/hashcrypto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountsService interface {
	// Register creates a user with the configured starting cash balance.
	Register(ctx context.Context, name, password string) (uuid.UUID, error)
	Authenticate(ctx context.Context, name, password string) (*models.User, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	// ResetPassword swaps the credential hash. It never touches cash or
	// transactions.
	ResetPassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error
}

type accountsService struct {
	usersRepo    repository.UsersRepository
	startingCash decimal.Decimal
}

func NewAccountsService(usersRepo repository.UsersRepository, startingCash decimal.Decimal) AccountsService {
	return &accountsService{
		usersRepo:    usersRepo,
		startingCash: startingCash,
	}
}

func (s *accountsService) Register(_ context.Context, name, password string) (uuid.UUID, error) {
	if name == "" || password == "" {
		return uuid.Nil, errs.ErrInvalidInput
	}

	hashedPassword, err := hashcrypto.HashPwd([]byte(password))
	if err != nil {
		return uuid.Nil, err
	}

	user := &models.User{
		ID:           uuid.New(),
		Name:         name,
		PasswordHash: string(hashedPassword),
		CashBalance:  s.startingCash,
	}

	if err := s.usersRepo.CreateUser(user); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return uuid.Nil, errs.ErrUsernameTaken
		}
		return uuid.Nil, err
	}

	return user.ID, nil
}

func (s *accountsService) Authenticate(_ context.Context, name, password string) (*models.User, error) {
	user, err := s.usersRepo.GetUserByName(name)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrAuthFailed
		}
		return nil, err
	}

	if err := hashcrypto.ComparePwd([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errs.ErrAuthFailed
	}

	return user, nil
}

func (s *accountsService) GetUser(_ context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.usersRepo.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *accountsService) ResetPassword(_ context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	if newPassword == "" {
		return errs.ErrInvalidInput
	}

	user, err := s.usersRepo.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrUserNotFound
		}
		return err
	}

	if err := hashcrypto.ComparePwd([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return errs.ErrAuthFailed
	}

	hashedPassword, err := hashcrypto.HashPwd([]byte(newPassword))
	if err != nil {
		return err
	}

	return s.usersRepo.UpdatePasswordHash(userID, string(hashedPassword))
}
