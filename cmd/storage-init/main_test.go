package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

func TestAlreadyExists(t *testing.T) {
	exists := &azcore.ResponseError{ErrorCode: string(aztables.TableAlreadyExists), StatusCode: 409}
	if !alreadyExists(fmt.Errorf("create: %w", exists), string(aztables.TableAlreadyExists)) {
		t.Fatal("expected wrapped TableAlreadyExists to match")
	}
	if alreadyExists(exists, queueAlreadyExists) {
		t.Fatal("codes must match exactly")
	}
	if alreadyExists(errors.New("boom"), queueAlreadyExists) {
		t.Fatal("plain errors never match")
	}
}
