// Copyright (c) Lian Authors.
// Licensed under the MIT License.

/*
Package sqlbuilder 将结构化的条件与取值描述渲染为 MySQL 语句文本。

# 概述

sqlbuilder 由三层组成：转义器负责标识符与字面量的安全引用，
条件编译器把条件表达式编译为条件树并渲染为 WHERE 片段，
语句构建器在此基础上生成 SELECT / INSERT / UPDATE / DELETE /
COUNT 语句。所有构建函数都是纯函数，不访问数据库。

# 条件表达式

  - Values：有序的 字段 → 值 映射，各项以 AND 连接。
    键可带操作符后缀，例如 age__gte、name__like、id__in。
    未识别的后缀按字面键名做等值比较。
  - AllOf / AnyOf：以 AND / OR 组合子表达式，可任意嵌套。
  - Not：对表达式取反。
  - Cond：显式指定操作符的单个比较。

值为 nil 时无论后缀如何都渲染为 IS NULL；空表达式渲染为 1，
取反的空表达式渲染为 0；空 IN 列表渲染为 (NULL)。

# 语句构建

  - Table.Select：投影支持 SUM:/MAX:/MIN: 聚合、* 前缀 DISTINCT 与 As 别名，
    OrderBy 中 - 前缀表示降序。
  - Table.Insert / InsertRow / InsertMany：ModeInsert（可带
    ON DUPLICATE KEY UPDATE）、ModeReplace、ModeInsertNotExists（需 Guard）。
  - Table.Update：SET 键可带 ADD: 前缀表示自增。
  - Table.Delete / Table.Count。
*/
package sqlbuilder
