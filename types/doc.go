// Copyright (c) Lian Authors.
// Licensed under the MIT License.

/*
Package types 提供 lian 数据访问层的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 sqlbuilder、database、
orm 等上层模块提供统一的错误契约。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含逻辑库名、查询关联 ID、Retryable 标记

# 错误码

  - NOT_INITIALIZED   — 连接池在 Init 之前被使用
  - CONFIGURATION     — 配置缺失或非法、重复 Init、insert-not-exists 缺少条件
  - INVALID_ARGUMENT  — 语句构建参数非法（字段、别名、between、长度不匹配）
  - INVALID_INPUT     — 无法转义的值类型
  - CONNECTION        — 建立连接失败（在连接池内部重试，不向调用方暴露）
  - EXECUTION         — 语句在驱动层执行失败
  - OBJECT_NOT_FOUND  — 按主键查询未命中

# 主要能力

  - 错误工具链：AsError / GetErrorCode / IsCode / IsRetryable
  - errors.Is 按错误码匹配：errors.Is(err, &types.Error{Code: types.ErrObjectNotFound})
*/
package types
