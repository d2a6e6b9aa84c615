package services

import (
	"context"
	"testing"

	"delivery-backend/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestGroupsLegsByOrder(t *testing.T) {
	f := newFixture(t)
	alloc := NewAllocationService(f.db)
	manifests := NewManifestService(f.db, NewManifestCache(nil))

	single := f.createOrder(t, mondayDate, 2, 20, 0)
	multi := f.createOrder(t, mondayDate, 3, 30, 2)

	r1, err := alloc.Accept(f.driver.ID, single.ID)
	require.NoError(t, err)
	_, err = alloc.Accept(f.driver.ID, multi.ID)
	require.NoError(t, err)

	manifest, err := manifests.GetTripManifest(context.Background(), r1.Trip.ID)
	require.NoError(t, err)

	// Заказы идут в порядке принятия (по нумерации плеч)
	require.Len(t, manifest.Orders, 2)
	assert.Equal(t, single.OrderNumber, manifest.Orders[0].OrderNumber)
	assert.Equal(t, multi.OrderNumber, manifest.Orders[1].OrderNumber)

	assert.Len(t, manifest.Orders[0].DeliveryLegs, 1)
	assert.Len(t, manifest.Orders[1].DeliveryLegs, 3)
	assert.Equal(t, models.LegStatusPending, manifest.Orders[0].PickupLeg.Status)

	// Пересчитанная занятость совпадает со счетчиками рейса
	assert.Equal(t, 5, manifest.RecomputedPackages)
	assert.Equal(t, 50.0, manifest.RecomputedWeight)
	assert.Equal(t, manifest.Trip.ConsumedPackages, manifest.RecomputedPackages)
}

func TestManifestExcludesCancelledFromRecompute(t *testing.T) {
	f := newFixture(t)
	alloc := NewAllocationService(f.db)
	alloc.CancelEmptyTrips = false
	manifests := NewManifestService(f.db, NewManifestCache(nil))

	order := f.createOrder(t, mondayDate, 2, 20, 0)
	keep := f.createOrder(t, mondayDate, 3, 30, 0)

	r1, err := alloc.Accept(f.driver.ID, order.ID)
	require.NoError(t, err)
	_, err = alloc.Accept(f.driver.ID, keep.ID)
	require.NoError(t, err)
	_, err = alloc.CancelOrder(order.ID, "")
	require.NoError(t, err)

	manifest, err := manifests.GetTripManifest(context.Background(), r1.Trip.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, manifest.RecomputedPackages)
	assert.Equal(t, 30.0, manifest.RecomputedWeight)
}

func TestManifestCacheHitAndInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("CACHE_ENABLED", "true")

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewManifestCache(client)

	f := newFixture(t)
	alloc := NewAllocationService(f.db)
	manifests := NewManifestService(f.db, cache)

	order := f.createOrder(t, mondayDate, 2, 20, 0)
	r, err := alloc.Accept(f.driver.ID, order.ID)
	require.NoError(t, err)

	ctx := context.Background()

	first, err := manifests.GetTripManifest(ctx, r.Trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TripStatusScheduled, first.Trip.Status)

	// Правим базу мимо сервиса: кэш должен вернуть старую ведомость
	require.NoError(t, f.db.Model(&models.Trip{}).
		Where("id = ?", r.Trip.ID).
		Update("status", models.TripStatusInProgress).Error)

	cached, err := manifests.GetTripManifest(ctx, r.Trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TripStatusScheduled, cached.Trip.Status)

	// После сброса кэша ведомость строится заново
	manifests.InvalidateTrip(ctx, r.Trip.ID)
	fresh, err := manifests.GetTripManifest(ctx, r.Trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TripStatusInProgress, fresh.Trip.Status)
}

func TestNextActionOrdering(t *testing.T) {
	f := newFixture(t)
	alloc := NewAllocationService(f.db)
	manifests := NewManifestService(f.db, NewManifestCache(nil))

	order := f.createOrder(t, mondayDate, 2, 20, 1)
	r, err := alloc.Accept(f.driver.ID, order.ID)
	require.NoError(t, err)

	// Пока забор не завершен, следующее действие — забор
	action, err := manifests.GetNextAction(r.Trip.ID)
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, models.LegKindPickup, action.Kind)
	require.NotNil(t, action.PickupLeg)
	assert.Equal(t, r.PickupLeg.ID, action.PickupLeg.ID)

	_, err = alloc.AdvanceLeg(f.driver.ID, models.LegKindPickup, r.PickupLeg.ID, models.LegStatusInTransit)
	require.NoError(t, err)
	_, err = alloc.AdvanceLeg(f.driver.ID, models.LegKindPickup, r.PickupLeg.ID, models.LegStatusPickedUp)
	require.NoError(t, err)

	// Затем доставки по возрастанию нумерации
	action, err = manifests.GetNextAction(r.Trip.ID)
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, models.LegKindDelivery, action.Kind)
	require.NotNil(t, action.DeliveryLeg)
	assert.Equal(t, 1, action.DeliveryLeg.Sequence)

	_, err = alloc.AdvanceLeg(f.driver.ID, models.LegKindDelivery, r.DeliveryLegs[0].ID, models.LegStatusInTransit)
	require.NoError(t, err)
	_, err = alloc.AdvanceLeg(f.driver.ID, models.LegKindDelivery, r.DeliveryLegs[0].ID, models.LegStatusDelivered)
	require.NoError(t, err)

	action, err = manifests.GetNextAction(r.Trip.ID)
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, 2, action.DeliveryLeg.Sequence)

	_, err = alloc.AdvanceLeg(f.driver.ID, models.LegKindDelivery, r.DeliveryLegs[1].ID, models.LegStatusInTransit)
	require.NoError(t, err)
	_, err = alloc.AdvanceLeg(f.driver.ID, models.LegKindDelivery, r.DeliveryLegs[1].ID, models.LegStatusDelivered)
	require.NoError(t, err)

	// Все плечи завершены
	action, err = manifests.GetNextAction(r.Trip.ID)
	require.NoError(t, err)
	assert.Nil(t, action)
}

func TestNextActionSkipsLegsOfFailedPickup(t *testing.T) {
	f := newFixture(t)
	alloc := NewAllocationService(f.db)
	manifests := NewManifestService(f.db, NewManifestCache(nil))

	failed := f.createOrder(t, mondayDate, 1, 10, 0)
	healthy := f.createOrder(t, mondayDate, 1, 10, 0)

	r1, err := alloc.Accept(f.driver.ID, failed.ID)
	require.NoError(t, err)
	r2, err := alloc.Accept(f.driver.ID, healthy.ID)
	require.NoError(t, err)

	_, err = alloc.AdvanceLeg(f.driver.ID, models.LegKindPickup, r1.PickupLeg.ID, models.LegStatusInTransit)
	require.NoError(t, err)
	_, err = alloc.AdvanceLeg(f.driver.ID, models.LegKindPickup, r1.PickupLeg.ID, models.LegStatusFailed)
	require.NoError(t, err)

	// Имитируем рассинхронизацию: плечо доставки проваленного забора
	// осталось pending. Защитная проверка чтения должна его пропустить.
	require.NoError(t, f.db.Model(&models.DeliveryLeg{}).
		Where("id = ?", r1.DeliveryLegs[0].ID).
		Update("status", models.LegStatusPending).Error)

	action, err := manifests.GetNextAction(r1.Trip.ID)
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, models.LegKindPickup, action.Kind)
	assert.Equal(t, r2.PickupLeg.ID, action.PickupLeg.ID)
}
