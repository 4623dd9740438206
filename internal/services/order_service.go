package services

import (
	"errors"
	"fmt"

	"cafe_inventory/internal/models"
	"cafe_inventory/internal/repositories"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderService exposes the orders written by import runs.
type OrderService interface {
	GetOrders(filters models.OrderFilters) ([]models.Order, int, error)
	GetOrderByID(orderID int64) (*models.Order, error) // with items
}

type orderService struct {
	orderRepo repositories.OrderRepository
}

// NewOrderService creates a new instance of OrderService.
func NewOrderService(or repositories.OrderRepository) OrderService {
	return &orderService{orderRepo: or}
}

func (s *orderService) GetOrders(filters models.OrderFilters) ([]models.Order, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = defaultPageSize
	}
	orders, totalCount, err := s.orderRepo.GetOrders(filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get orders: %w", err)
	}
	return orders, totalCount, nil
}

func (s *orderService) GetOrderByID(orderID int64) (*models.Order, error) {
	order, err := s.orderRepo.GetOrderByID(orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order by ID from repository: %w", err)
	}

	items, err := s.orderRepo.GetOrderItemsByOrderID(orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get items of order %d: %w", orderID, err)
	}
	order.Items = items
	return order, nil
}
