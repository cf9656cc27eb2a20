package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ornate/go-jewelry-api/internal/dto"
	"github.com/ornate/go-jewelry-api/internal/model"
	"github.com/ornate/go-jewelry-api/internal/repository"
)

type AddressService struct {
	addressRepo repository.AddressRepository
}

func NewAddressService(addressRepo repository.AddressRepository) *AddressService {
	return &AddressService{addressRepo: addressRepo}
}

func (s *AddressService) Create(ctx context.Context, userID uuid.UUID, req dto.AddressRequest) (*model.Address, error) {
	if req.IsDefault {
		if err := s.addressRepo.ClearDefault(ctx, userID); err != nil {
			return nil, fmt.Errorf("clear default: %w", err)
		}
	}
	addr := &model.Address{
		UserID:     userID,
		FullName:   req.FullName,
		Line1:      req.Line1,
		Line2:      req.Line2,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		Phone:      req.Phone,
		IsDefault:  req.IsDefault,
	}
	if err := s.addressRepo.Create(ctx, addr); err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}
	return addr, nil
}

func (s *AddressService) List(ctx context.Context, userID uuid.UUID) ([]model.Address, error) {
	return s.addressRepo.ListByUserID(ctx, userID)
}

func (s *AddressService) Update(ctx context.Context, userID, addrID uuid.UUID, req dto.AddressRequest) (*model.Address, error) {
	addr, err := s.owned(ctx, userID, addrID)
	if err != nil {
		return nil, err
	}
	if req.IsDefault && !addr.IsDefault {
		if err := s.addressRepo.ClearDefault(ctx, userID); err != nil {
			return nil, fmt.Errorf("clear default: %w", err)
		}
	}
	addr.FullName = req.FullName
	addr.Line1 = req.Line1
	addr.Line2 = req.Line2
	addr.City = req.City
	addr.State = req.State
	addr.PostalCode = req.PostalCode
	addr.Country = req.Country
	addr.Phone = req.Phone
	addr.IsDefault = req.IsDefault
	if err := s.addressRepo.Update(ctx, addr); err != nil {
		return nil, fmt.Errorf("update address: %w", err)
	}
	return addr, nil
}

func (s *AddressService) Delete(ctx context.Context, userID, addrID uuid.UUID) error {
	if _, err := s.owned(ctx, userID, addrID); err != nil {
		return err
	}
	return s.addressRepo.Delete(ctx, addrID)
}

func (s *AddressService) owned(ctx context.Context, userID, addrID uuid.UUID) (*model.Address, error) {
	addr, err := s.addressRepo.GetByID(ctx, addrID)
	if err != nil {
		return nil, fmt.Errorf("get address: %w", err)
	}
	if addr == nil || addr.UserID != userID {
		return nil, ErrAddressNotFound
	}
	return addr, nil
}
